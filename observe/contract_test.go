package observe

import (
	"context"
	"testing"
	"time"
)

func TestLoggerContract_With(t *testing.T) {
	for _, l := range []Logger{NopLogger(), NewLoggerWithWriter("info", &discard{})} {
		if l.With(Field{Key: "k", Value: "v"}) == nil {
			t.Fatalf("%T.With() returned nil", l)
		}
	}
}

func TestMetricsContract_NoPanic(t *testing.T) {
	m := NopMetrics()
	ctx := context.Background()
	m.RecordCall(ctx, CallMeta{Operation: "noop"}, time.Millisecond, nil)
	m.RecordRateWait(ctx, "c", "pacing", time.Millisecond)
	m.RecordRateRemaining(ctx, "c", 1)
	m.RecordCircuitTransition(ctx, "c", "closed", "open")
	m.RecordRefresh(ctx, "success", time.Millisecond)
	m.RecordPoll(ctx, "ok")
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
