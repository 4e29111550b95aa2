package runtime

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStateMachine_SearchPath(t *testing.T) {
	sm := NewStateMachine()
	path := []TurnState{
		StatePersisted, StateRetrieved, StateCompleted, StateParsedCommand,
		StateDispatching, StateRecompletedFinalizing, StateAwaitingInput,
	}
	for _, s := range path {
		if err := sm.Transition(s); err != nil {
			t.Fatalf("Transition(%s): %v", s, err)
		}
	}
	want := append([]TurnState{StateAwaitingInput}, path[:len(path)-1]...)
	if diff := cmp.Diff(want, sm.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestStateMachine_PlainAndErrorPaths(t *testing.T) {
	for _, parsed := range []TurnState{StateParsedNoCommand, StateParsedError} {
		sm := NewStateMachine()
		for _, s := range []TurnState{StatePersisted, StateRetrieved, StateCompleted, parsed, StateFinalizing, StateAwaitingInput} {
			if err := sm.Transition(s); err != nil {
				t.Fatalf("%s path: Transition(%s): %v", parsed, s, err)
			}
		}
	}
}

func TestStateMachine_RejectsSkips(t *testing.T) {
	tests := []struct {
		from []TurnState
		to   TurnState
	}{
		{nil, StateCompleted},
		{[]TurnState{StatePersisted}, StateParsedCommand},
		{[]TurnState{StatePersisted, StateRetrieved, StateCompleted, StateParsedNoCommand}, StateDispatching},
		{[]TurnState{StatePersisted, StateRetrieved, StateCompleted, StateParsedError}, StateRecompletedFinalizing},
	}
	for _, tt := range tests {
		sm := NewStateMachine()
		for _, s := range tt.from {
			if err := sm.Transition(s); err != nil {
				t.Fatalf("setup Transition(%s): %v", s, err)
			}
		}
		before := sm.Current()
		if err := sm.Transition(tt.to); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", before, tt.to, err)
		}
		if sm.Current() != before {
			t.Errorf("state changed on rejected transition: %s", sm.Current())
		}
	}
}

func TestStateMachine_Abort(t *testing.T) {
	sm := NewStateMachine()
	sm.Transition(StatePersisted)
	sm.Transition(StateRetrieved)
	sm.Abort()
	if sm.Current() != StateAwaitingInput {
		t.Errorf("current = %s", sm.Current())
	}
	sm.Abort()
	if n := len(sm.History()); n != 3 {
		t.Errorf("history length = %d, want 3", n)
	}
}
