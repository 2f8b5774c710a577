package operation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/observe"
)

// Chunk is one delivery of sub-resource content. A Chunk with Err set is the
// marker for content that could not be obtained before the operation ended.
type Chunk struct {
	SubResourceID string
	Name          string
	Offset        int64
	Data          []byte
	Err           error
}

// LogCursor records how much of a sub-resource's log has been retrieved.
type LogCursor struct {
	SubResourceID string
	Offset        int64
	Completed     bool
}

// StreamerConfig configures a Streamer.
type StreamerConfig struct {
	// MaxConcurrentFetches bounds log fetches within one tick.
	// Default: 4
	MaxConcurrentFetches int
}

// Streamer retrieves the logs of an operation's sub-resources as they
// finish, on the cadence of the Poller tracking the operation.
type Streamer struct {
	poller *Poller
	config StreamerConfig
	log    observe.Logger
}

// NewStreamer creates a streamer that shares p's source, clock and cadence.
func NewStreamer(p *Poller, config StreamerConfig) *Streamer {
	if config.MaxConcurrentFetches <= 0 {
		config.MaxConcurrentFetches = 4
	}
	return &Streamer{
		poller: p,
		config: config,
		log:    p.log.With(observe.Field{Key: "stream", Value: true}),
	}
}

// stream is the per-call bookkeeping of Stream.
type stream struct {
	id        string
	cursors   map[string]*LogCursor
	names     map[string]string
	completed map[string]struct{}
	retry     map[string]struct{}
	order     []string
}

func (st *stream) cursor(id string) *LogCursor {
	c, ok := st.cursors[id]
	if !ok {
		c = &LogCursor{SubResourceID: id}
		st.cursors[id] = c
	}
	return c
}

type fetchResult struct {
	id     string
	offset int64
	data   []byte
	err    error
}

// Stream calls onChunk with the log of every sub-resource of h once it is
// terminal. onChunk is called from the Stream goroutine only, in
// sub-resource order within a tick, and at most once per sub-resource with
// content. Fetches that fail are retried on later ticks; when the operation
// ends, one final attempt is made and remaining failures are delivered as
// Chunks with Err set.
//
// Stream returns nil once the operation is done, ErrStopped after Cancel, a
// *PollError when status polling keeps failing, or ctx.Err().
func (s *Streamer) Stream(ctx context.Context, h *Handle, onChunk func(Chunk)) error {
	p := s.poller
	clk := p.config.Clock

	sleepCtx, cancelSleep := context.WithCancel(ctx)
	defer cancelSleep()
	defer context.AfterFunc(h.ctx, cancelSleep)()

	st := &stream{
		id:        h.Snapshot().ID,
		cursors:   make(map[string]*LogCursor),
		names:     make(map[string]string),
		completed: make(map[string]struct{}),
		retry:     make(map[string]struct{}),
	}

	for {
		op, err := p.pollIfDue(ctx, h)
		switch {
		case err == nil:
		case errors.Is(err, ErrStopped):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrOperationNotFound):
			return err
		case op.ConsecutiveErrors >= p.config.MaxConsecutiveErrors:
			return &PollError{ID: op.ID, ConsecutiveErrors: op.ConsecutiveErrors, LastState: op.State, Err: err}
		}

		if err := s.tick(ctx, st, op.Done(), onChunk); err != nil {
			return err
		}
		if op.Done() {
			s.finish(st, onChunk)
			return nil
		}

		if err := clk.Sleep(sleepCtx, clock.Until(clk, h.nextPollAt())); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The handle finished or was cancelled while sleeping; the next
			// iteration sorts out which.
		}
	}
}

// tick enumerates sub-resources and fetches every terminal one that has
// not completed, plus the retry queue. The tick that sees the parent done
// is the final pass: every unfinished sub-resource is attempted once.
func (s *Streamer) tick(ctx context.Context, st *stream, parentDone bool, onChunk func(Chunk)) error {
	subs, err := s.poller.source.FetchSubResources(ctx, st.id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn(ctx, "list sub-resources failed",
			observe.Field{Key: "operation_id", Value: st.id},
			observe.Field{Key: "error", Value: err},
		)
		subs = nil
	}

	var due []string
	queued := make(map[string]bool)
	for _, sub := range subs {
		if _, seen := st.names[sub.ID]; !seen {
			st.order = append(st.order, sub.ID)
		}
		st.names[sub.ID] = sub.Name
		if _, done := st.completed[sub.ID]; done {
			continue
		}
		if sub.State.Terminal() || parentDone {
			due = append(due, sub.ID)
			queued[sub.ID] = true
		}
	}
	for _, id := range st.order {
		if _, retry := st.retry[id]; retry && !queued[id] {
			due = append(due, id)
			queued[id] = true
		}
	}

	return s.fetch(ctx, st, due, onChunk)
}

// finish emits error markers for whatever the final tick could not fetch.
func (s *Streamer) finish(st *stream, onChunk func(Chunk)) {
	for _, id := range st.order {
		if _, retry := st.retry[id]; !retry {
			continue
		}
		cur := st.cursor(id)
		cur.Completed = true
		delete(st.retry, id)
		onChunk(Chunk{
			SubResourceID: id,
			Name:          st.names[id],
			Offset:        cur.Offset,
			Err:           fmt.Errorf("%w: %s", ErrLogUnavailable, id),
		})
	}
}

// fetch retrieves logs for ids concurrently, then applies the results in
// order on the calling goroutine.
func (s *Streamer) fetch(ctx context.Context, st *stream, ids []string, onChunk func(Chunk)) error {
	if len(ids) == 0 {
		return nil
	}

	results := make([]fetchResult, len(ids))
	for i, id := range ids {
		results[i] = fetchResult{id: id, offset: st.cursor(id).Offset}
	}

	tel := s.poller.config.Telemetry
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentFetches)
	for i := range results {
		r := &results[i]
		g.Go(func() error {
			meta := observe.CallMeta{Operation: "stream", Class: s.poller.config.Class, RequestID: r.id}
			spanCtx, span := tel.Tracer.StartSpan(gctx, meta)
			r.data, r.err = s.poller.source.FetchLog(spanCtx, st.id, r.id, r.offset)
			tel.Tracer.EndSpan(span, meta, r.err)
			// Individual failures are retried later; only cancellation
			// aborts the group.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r.err != nil {
			st.retry[r.id] = struct{}{}
			s.log.Warn(ctx, "log fetch failed",
				observe.Field{Key: "operation_id", Value: st.id},
				observe.Field{Key: "sub_resource", Value: r.id},
				observe.Field{Key: "error", Value: r.err},
			)
			continue
		}

		cur := st.cursor(r.id)
		cur.Offset += int64(len(r.data))
		cur.Completed = true
		st.completed[r.id] = struct{}{}
		delete(st.retry, r.id)
		onChunk(Chunk{
			SubResourceID: r.id,
			Name:          st.names[r.id],
			Offset:        r.offset,
			Data:          r.data,
		})
	}
	return nil
}
