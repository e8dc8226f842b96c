package testutil

import (
	"testing"
	"time"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// Day parses a civil date in types.DateLayout and panics on bad input.
func Day(s string) time.Time {
	d, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// Days parses several civil dates.
func Days(ss ...string) []time.Time {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = Day(s)
	}
	return out
}

// AlertSink collects alerts passed to its Func.
type AlertSink struct {
	ch chan types.Alert
}

// NewAlertSink creates a buffered sink.
func NewAlertSink() *AlertSink {
	return &AlertSink{ch: make(chan types.Alert, 64)}
}

// Func returns a callback suitable for alertFn parameters.
func (s *AlertSink) Func() func(types.Alert) {
	return func(a types.Alert) {
		select {
		case s.ch <- a:
		default:
		}
	}
}

// Drain returns every alert received so far.
func (s *AlertSink) Drain() []types.Alert {
	var out []types.Alert
	for {
		select {
		case a := <-s.ch:
			out = append(out, a)
		default:
			return out
		}
	}
}
