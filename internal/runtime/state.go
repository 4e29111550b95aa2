package runtime

import (
	"errors"
	"fmt"
	"sync"
)

// TurnState is a step of the per-turn state machine.
type TurnState string

const (
	StateAwaitingInput         TurnState = "awaiting_input"
	StatePersisted             TurnState = "persisted"
	StateRetrieved             TurnState = "retrieved"
	StateCompleted             TurnState = "completed"
	StateParsedNoCommand       TurnState = "parsed_no_command"
	StateParsedCommand         TurnState = "parsed_command"
	StateParsedError           TurnState = "parsed_error"
	StateDispatching           TurnState = "dispatching"
	StateRecompletedFinalizing TurnState = "recompleted_finalizing"
	StateFinalizing            TurnState = "finalizing"
)

var ErrInvalidTransition = errors.New("invalid turn state transition")

// Finalizing writes the final assistant turn when there is text to write. A
// malformed or failed command with no prose before it finalizes with nothing,
// so the session never stores an empty or half-parsed assistant turn.
var transitions = map[TurnState][]TurnState{
	StateAwaitingInput:         {StatePersisted},
	StatePersisted:             {StateRetrieved},
	StateRetrieved:             {StateCompleted},
	StateCompleted:             {StateParsedNoCommand, StateParsedCommand, StateParsedError},
	StateParsedNoCommand:       {StateFinalizing},
	StateParsedError:           {StateFinalizing},
	StateParsedCommand:         {StateDispatching, StateFinalizing},
	StateDispatching:           {StateRecompletedFinalizing, StateFinalizing},
	StateRecompletedFinalizing: {StateAwaitingInput},
	StateFinalizing:            {StateAwaitingInput},
}

// StateMachine tracks where the current turn is. A failed turn returns to
// StateAwaitingInput through Abort.
type StateMachine struct {
	mu      sync.RWMutex
	current TurnState
	history []TurnState
}

func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateAwaitingInput}
}

// Current returns the current state.
func (sm *StateMachine) Current() TurnState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition moves to next if the table allows it.
func (sm *StateMachine) Transition(next TurnState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, allowed := range transitions[sm.current] {
		if allowed == next {
			sm.history = append(sm.history, sm.current)
			sm.current = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sm.current, next)
}

// Abort returns to StateAwaitingInput from anywhere.
func (sm *StateMachine) Abort() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current != StateAwaitingInput {
		sm.history = append(sm.history, sm.current)
		sm.current = StateAwaitingInput
	}
}

// History returns every state left so far, oldest first.
func (sm *StateMachine) History() []TurnState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]TurnState, len(sm.history))
	copy(out, sm.history)
	return out
}
