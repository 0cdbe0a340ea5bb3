package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveLedger(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLedger("reserve", "RESERVED", time.Now())
	m.ObserveLedger("reserve", "RESERVED", time.Now())
	m.ObserveLedger("reserve", "INSUFFICIENT_BUDGET", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerOperations.WithLabelValues("reserve", "RESERVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOperations.WithLabelValues("reserve", "INSUFFICIENT_BUDGET")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LedgerDuration))
}

func TestObserveLedger_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveLedger("commit", "COMMITTED", time.Now()) })
}
