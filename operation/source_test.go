package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errBackend = errors.New("502 bad gateway")

type reply struct {
	state State
	err   error
}

func ok(s Status) reply {
	return reply{state: State{Status: s}}
}

func done(c Conclusion) reply {
	return reply{state: Completed(c)}
}

func fail(err error) reply {
	return reply{err: err}
}

// fakeSource replays status replies in order, repeating the last one.
type fakeSource struct {
	clk *clock.Fake

	mu        sync.Mutex
	replies   []reply
	pollTimes []time.Time
	cancelled []string
	cancelErr error

	// subs returns the sub-resources for the n-th listing (0-based).
	subs     func(n int) []SubResource
	listings int
	// logs returns the log for a sub-resource on its n-th fetch (0-based).
	logs      func(id string, n int) ([]byte, error)
	logCalls  map[string]int
	offsets   map[string][]int64
	block     chan struct{}
	blockPoll int
}

func newFakeSource(clk *clock.Fake, replies ...reply) *fakeSource {
	return &fakeSource{
		clk:      clk,
		replies:  replies,
		logCalls: make(map[string]int),
		offsets:  make(map[string][]int64),
	}
}

func (f *fakeSource) FetchStatus(ctx context.Context, id string) (RawStatus, error) {
	f.mu.Lock()
	n := len(f.pollTimes)
	f.pollTimes = append(f.pollTimes, f.clk.Now())
	r := f.replies[min(n, len(f.replies)-1)]
	block := f.block
	blockPoll := f.blockPoll
	f.mu.Unlock()

	if block != nil && n == blockPoll {
		select {
		case <-block:
		case <-ctx.Done():
			return RawStatus{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return RawStatus{}, err
	}
	if r.err != nil {
		return RawStatus{}, r.err
	}
	return RawStatus{State: r.state}, nil
}

func (f *fakeSource) FetchSubResources(ctx context.Context, id string) ([]SubResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.listings
	f.listings++
	if f.subs == nil {
		return nil, nil
	}
	return f.subs(n), nil
}

func (f *fakeSource) FetchLog(ctx context.Context, id, sub string, offset int64) ([]byte, error) {
	f.mu.Lock()
	n := f.logCalls[sub]
	f.logCalls[sub]++
	f.offsets[sub] = append(f.offsets[sub], offset)
	f.mu.Unlock()
	return f.logs(sub, n)
}

func (f *fakeSource) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

func (f *fakeSource) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pollTimes)
}

func (f *fakeSource) intervals() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Duration
	for i := 1; i < len(f.pollTimes); i++ {
		out = append(out, f.pollTimes[i].Sub(f.pollTimes[i-1]))
	}
	return out
}

func notFound(id string) error {
	return fmt.Errorf("run %s: %w", id, ErrOperationNotFound)
}
