package operation

import (
	"errors"
	"testing"
)

func TestMachine_Transitions(t *testing.T) {
	var seen []string
	m := newMachine("", func(from, to Status) {
		seen = append(seen, string(from)+">"+string(to))
	})

	steps := []Status{StatusQueued, StatusQueued, StatusInProgress, StatusWaiting, StatusInProgress, StatusCompleted}
	for _, s := range steps {
		if err := m.advance(s); err != nil {
			t.Fatalf("advance(%s) error = %v", s, err)
		}
	}

	want := []string{
		"unknown>queued",
		"queued>in_progress",
		"in_progress>waiting",
		"waiting>in_progress",
		"in_progress>completed",
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestMachine_CompletedIsTerminal(t *testing.T) {
	m := newMachine(StatusCompleted, nil)

	for _, s := range []Status{StatusQueued, StatusInProgress, StatusWaiting} {
		if err := m.advance(s); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("advance(%s) error = %v, want ErrInvalidTransition", s, err)
		}
	}
	if m.current() != StatusCompleted {
		t.Errorf("current() = %s, want completed", m.current())
	}
}

func TestMachine_UnknownStatus(t *testing.T) {
	m := newMachine(StatusQueued, nil)
	if err := m.advance("paused"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("advance(paused) error = %v, want ErrUnknownStatus", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{State{}, "unknown"},
		{State{Status: StatusWaiting}, "waiting"},
		{Completed(ConclusionCancelled), "completed(cancelled)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
