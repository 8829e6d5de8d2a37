package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	m := New()

	m.VotesCast.WithLabelValues("Commit").Inc()
	m.ProposalsAbstained.Inc()
	m.BlocksCommitted.Inc()
	m.LockConflicts.Inc()
	m.ExecutionDuration.Observe(0.01)
	m.GossipDecodeErrors.WithLabelValues("consensus").Inc()
	m.GossipPublished.WithLabelValues("proposal").Inc()

	if got := testutil.ToFloat64(m.ProposalsAbstained); got != 1 {
		t.Fatalf("ProposalsAbstained = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BlocksCommitted); got != 1 {
		t.Fatalf("BlocksCommitted = %v, want 1", got)
	}
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	m := New()
	m.BlocksCommitted.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "valnode_hotstuff_blocks_committed_total") {
		t.Fatalf("expected exposition to contain the blocks-committed metric, got:\n%s", rec.Body.String())
	}
}
