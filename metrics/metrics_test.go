package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecordTick verifies ticks are counted by result
func TestRecordTick(t *testing.T) {
	before := testutil.ToFloat64(TicksTotal.WithLabelValues("ok"))

	RecordTick("ok", 0.25)
	RecordTick("ok", 1.5)

	assert.Equal(t, before+2, testutil.ToFloat64(TicksTotal.WithLabelValues("ok")))
}

// TestRecordEviction verifies reason and result labels
func TestRecordEviction(t *testing.T) {
	okBefore := testutil.ToFloat64(EvictionsTotal.WithLabelValues("disk", "success"))
	failBefore := testutil.ToFloat64(EvictionsTotal.WithLabelValues("disk", "failure"))

	RecordEviction("disk", true)
	RecordEviction("disk", false)
	RecordEviction("disk", false)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(EvictionsTotal.WithLabelValues("disk", "success")))
	assert.Equal(t, failBefore+2, testutil.ToFloat64(EvictionsTotal.WithLabelValues("disk", "failure")))
}

// TestGauges verifies gauges hold the last value set
func TestGauges(t *testing.T) {
	SetCandidates("selected", 4)
	SetCandidates("selected", 2)
	SetLedgerSize(12)
	SetFreeDiskBytes(1 << 30)
	SetManagedTorrents(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(Candidates.WithLabelValues("selected")))
	assert.Equal(t, 12.0, testutil.ToFloat64(LedgerSize))
	assert.Equal(t, float64(1<<30), testutil.ToFloat64(FreeDiskBytes))
	assert.Equal(t, 7.0, testutil.ToFloat64(ManagedTorrents))
}

// TestHandler verifies the registry is exposed in text format
func TestHandler(t *testing.T) {
	RecordStrictCycle()
	RecordAcquisition(true)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "promobot_strict_cycles_total")
	assert.Contains(t, body, `promobot_acquisitions_total{result="success"}`)
	assert.Contains(t, body, "go_goroutines")
}
