package operation

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	eventQueue    = "queue"
	eventStart    = "start"
	eventWait     = "wait"
	eventComplete = "complete"
)

var pending = []string{
	string(StatusUnknown),
	string(StatusQueued),
	string(StatusInProgress),
	string(StatusWaiting),
}

// lifecycle lists the allowed transitions. Completed is not a source of any
// event, so a terminal operation never changes state again.
var lifecycle = fsm.Events{
	{Name: eventQueue, Src: without(pending, StatusQueued), Dst: string(StatusQueued)},
	{Name: eventStart, Src: without(pending, StatusInProgress), Dst: string(StatusInProgress)},
	{Name: eventWait, Src: without(pending, StatusWaiting), Dst: string(StatusWaiting)},
	{Name: eventComplete, Src: pending, Dst: string(StatusCompleted)},
}

func without(states []string, s Status) []string {
	out := make([]string, 0, len(states))
	for _, st := range states {
		if st != string(s) {
			out = append(out, st)
		}
	}
	return out
}

func eventFor(s Status) (string, bool) {
	switch s {
	case StatusQueued:
		return eventQueue, true
	case StatusInProgress:
		return eventStart, true
	case StatusWaiting:
		return eventWait, true
	case StatusCompleted:
		return eventComplete, true
	default:
		return "", false
	}
}

// machine validates the status sequence of one operation. It is not safe
// for concurrent use; Handle guards it.
type machine struct {
	fsm *fsm.FSM
}

func newMachine(initial Status, onTransition func(from, to Status)) *machine {
	if initial == "" {
		initial = StatusUnknown
	}
	return &machine{
		fsm: fsm.NewFSM(
			string(initial),
			lifecycle,
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					if onTransition != nil {
						onTransition(Status(e.Src), Status(e.Dst))
					}
				},
			},
		),
	}
}

func (m *machine) current() Status {
	return Status(m.fsm.Current())
}

// advance moves the machine to status. Reporting the current status again
// is a no-op.
func (m *machine) advance(to Status) error {
	from := m.current()
	if from == to {
		return nil
	}

	event, ok := eventFor(to)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !m.fsm.Can(event) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	// A transition must not be interrupted halfway, so it never sees the
	// caller's context.
	return m.fsm.Event(context.Background(), event)
}
