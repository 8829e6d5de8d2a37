// Package types defines the data model and external-collaborator interfaces
// shared by every component of the validator core (blocks, QCs, commands,
// transaction pool records, substate records, and the Spec vtable described
// in spec.md §9).
package types

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash is a 32-byte content digest used for block ids, QC ids and
// transaction ids throughout the core.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// HashFromHex parses a hex-encoded hash, as produced by Hash.String.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// hasher accumulates a canonical byte encoding for content addressing.
// Fields are length-prefixed so no value can be confused with a
// concatenation of its neighbours.
type hasher struct {
	buf []byte
}

func newHasher() *hasher { return &hasher{buf: make([]byte, 0, 256)} }

func (h *hasher) writeBytes(b []byte) *hasher {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
	h.buf = append(h.buf, lenBuf[:]...)
	h.buf = append(h.buf, b...)
	return h
}

func (h *hasher) writeUint64(v uint64) *hasher {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.buf = append(h.buf, b[:]...)
	return h
}

func (h *hasher) writeByte(v byte) *hasher {
	h.buf = append(h.buf, v)
	return h
}

func (h *hasher) sum() Hash {
	return blake2b.Sum256(h.buf)
}
