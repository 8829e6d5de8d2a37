// Package gossip implements the C6 gossip dispatcher (§4.6): shard-group
// topic derivation, subscribe/unsubscribe/multicast/forward over a pub/sub
// overlay, and point-to-point delivery to a single peer. Grounded on
// original_source's p2p/services/messaging::Gossip (topic naming, subscribe/
// publish shape) and mempool/gossip.rs (forward_to_local_replicas/
// forward_to_foreign_replicas bucket routing).
package gossip

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/snappy"
)

// encodeFrame implements §6's "length-prefixed binary envelope": JSON-encode
// the payload, snappy-compress it, and prepend a 4-byte big-endian length.
// JSON matches the teacher's own wire/document encoding choice
// (pkg/database/metadata.go); snappy is klauspost/compress, already in the
// pack's dependency surface.
func encodeFrame(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gossip: encode frame: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	framed := make([]byte, 4+len(compressed))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(compressed)))
	copy(framed[4:], compressed)
	return framed, nil
}

// decodeFrame reverses encodeFrame into out, a pointer to the expected
// payload shape.
func decodeFrame(framed []byte, out any) error {
	if len(framed) < 4 {
		return fmt.Errorf("gossip: decode frame: %w: too short", ErrInvalidMessage)
	}
	n := binary.BigEndian.Uint32(framed[:4])
	if int(n) != len(framed)-4 {
		return fmt.Errorf("gossip: decode frame: %w: length mismatch", ErrInvalidMessage)
	}
	raw, err := snappy.Decode(nil, framed[4:])
	if err != nil {
		return fmt.Errorf("gossip: decode frame: %w: %v", ErrInvalidMessage, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gossip: decode frame: %w: %v", ErrInvalidMessage, err)
	}
	return nil
}
