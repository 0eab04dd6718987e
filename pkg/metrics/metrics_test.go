package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := NewIsolated()

	m.JumpsTotal.WithLabelValues("python", OutcomeLocal).Inc()
	m.JumpsTotal.WithLabelValues("python", OutcomeLocal).Inc()
	m.IntrospectionsTotal.WithLabelValues(IntrospectionStale).Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(m.JumpsTotal.WithLabelValues("python", OutcomeLocal)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.IntrospectionsTotal.WithLabelValues(IntrospectionStale)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.JumpBacksTotal), 0)
}

func TestHandler(t *testing.T) {
	m := NewIsolated()
	m.JumpBacksTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gotodef_jump_backs_total 1")
}

func TestIsolatedRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewIsolated()
		NewIsolated()
	})
}
