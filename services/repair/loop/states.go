// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import "fmt"

// State is a repair loop state.
type State string

const (
	// StateRunning is executing the build/test command.
	StateRunning State = "RUNNING"

	// StateClassifying is inspecting the result for success, coverage
	// deficit, or hard failure.
	StateClassifying State = "CLASSIFYING"

	// StateRequesting is asking the assistant for a patch.
	StateRequesting State = "REQUESTING"

	// StateValidating is running header and safety checks.
	StateValidating State = "VALIDATING"

	// StateApproving is waiting for human or auto approval.
	StateApproving State = "APPROVING"

	// StateApplying is mutating the working tree.
	StateApplying State = "APPLYING"

	// StateDone is terminal success.
	StateDone State = "DONE"

	// StateAborted is terminal failure.
	StateAborted State = "ABORTED"
)

// ErrInvalidTransition reports a transition outside the graph. It is a
// programming invariant, not a user-facing retry.
var ErrInvalidTransition = fmt.Errorf("invalid state transition")

// StateMachine enforces the repair loop transition graph:
//
//	RUNNING → CLASSIFYING        : Command finished
//	RUNNING → ABORTED            : Command could not be started
//	CLASSIFYING → DONE           : Command green, no coverage deficit
//	CLASSIFYING → REQUESTING     : Failure or coverage deficit
//	CLASSIFYING → ABORTED        : Non-retryable failure pattern
//	REQUESTING → VALIDATING      : Candidate diff extracted
//	REQUESTING → REQUESTING      : Extraction failed, new attempt
//	REQUESTING → ABORTED         : NOOP reply or budget exhausted
//	VALIDATING → APPROVING       : Diff passed all checks
//	VALIDATING → REQUESTING      : Diff rejected, new attempt
//	VALIDATING → ABORTED         : Budget exhausted
//	APPROVING → APPLYING         : Approved
//	APPROVING → REQUESTING       : Declined, new attempt
//	APPROVING → ABORTED          : Operator quit
//	APPLYING → RUNNING           : Applied, next overall iteration
//	APPLYING → REQUESTING        : Apply failed, new attempt
//	APPLYING → ABORTED           : Budget exhausted
type StateMachine struct {
	transitions map[State]map[State]bool
	current     State
}

// NewStateMachine creates a machine positioned at StateRunning.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[State]map[State]bool),
		current:     StateRunning,
	}

	add := func(from, to State) {
		if sm.transitions[from] == nil {
			sm.transitions[from] = make(map[State]bool)
		}
		sm.transitions[from][to] = true
	}

	add(StateRunning, StateClassifying)
	add(StateRunning, StateAborted)

	add(StateClassifying, StateDone)
	add(StateClassifying, StateRequesting)
	add(StateClassifying, StateAborted)

	add(StateRequesting, StateValidating)
	add(StateRequesting, StateRequesting)
	add(StateRequesting, StateAborted)

	add(StateValidating, StateApproving)
	add(StateValidating, StateRequesting)
	add(StateValidating, StateAborted)

	add(StateApproving, StateApplying)
	add(StateApproving, StateRequesting)
	add(StateApproving, StateAborted)

	add(StateApplying, StateRunning)
	add(StateApplying, StateRequesting)
	add(StateApplying, StateAborted)

	return sm
}

// Current returns the current state.
func (sm *StateMachine) Current() State { return sm.current }

// CanTransition checks whether from → to is in the graph.
func (sm *StateMachine) CanTransition(from, to State) bool {
	return sm.transitions[from][to]
}

// Transition moves to the target state, or reports an invariant
// violation.
func (sm *StateMachine) Transition(to State) error {
	if !sm.CanTransition(sm.current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sm.current, to)
	}
	sm.current = to
	return nil
}
