package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.ActiveRoundsTotal.Inc()
	if got := testutil.ToFloat64(m.ActiveRoundsTotal); got != 1 {
		t.Errorf("expected ActiveRoundsTotal=1, got %v", got)
	}

	m.MessagesSent.WithLabelValues("push").Inc()
	m.MessagesSent.WithLabelValues("push").Inc()
	if got := testutil.ToFloat64(m.MessagesSent.WithLabelValues("push")); got != 2 {
		t.Errorf("expected MessagesSent{push}=2, got %v", got)
	}

	m.ViewSize.Set(20)
	if got := testutil.ToFloat64(m.ViewSize); got != 20 {
		t.Errorf("expected ViewSize=20, got %v", got)
	}
}
