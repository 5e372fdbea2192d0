package timing

import (
	"context"
	"fmt"
	"time"
)

type Transition string

const (
	TransitionFinalCall Transition = "final-call"
	TransitionStartRace Transition = "start"
	TransitionFinish    Transition = "finish"
	TransitionReset     Transition = "reset"
)

var Transitions = []Transition{TransitionFinalCall, TransitionStartRace, TransitionFinish, TransitionReset}

func ParseTransition(s string) (Transition, error) {
	for _, t := range Transitions {
		if string(t) == s {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownTransition, s)
}

func (t Transition) Target() SessionState {
	switch t {
	case TransitionFinalCall:
		return StateFinalCall
	case TransitionStartRace:
		return StateGreen
	case TransitionFinish:
		return StateFinished
	default:
		return StatePrep
	}
}

// Allowed is the operator toolbar's view of which transitions make sense from
// the given state. The StateMachine does not enforce it.
func (t Transition) Allowed(from SessionState) bool {
	switch t {
	case TransitionFinalCall:
		return from == StatePrep
	case TransitionStartRace:
		return from != StateGreen && from != StateFinished
	case TransitionFinish:
		return from != StateFinished
	default:
		return true
	}
}

// AllowedTransitions lists, in toolbar order, the transitions Allowed from
// the given state.
func AllowedTransitions(from SessionState) []Transition {
	allowed := make([]Transition, 0, len(Transitions))

	for _, t := range Transitions {
		if t.Allowed(from) {
			allowed = append(allowed, t)
		}
	}

	return allowed
}

// StateMachine runs session lifecycle transitions. Every transition is an
// unconditional write of the target state followed by exactly one audit event;
// ordering between states is left to the store.
type StateMachine struct {
	store  SessionStore
	now    func() time.Time
	logger Logger
}

func NewStateMachine(store SessionStore, now func() time.Time, logger Logger) *StateMachine {
	if now == nil {
		now = time.Now
	}

	return &StateMachine{
		store:  store,
		now:    now,
		logger: logger,
	}
}

func (sm *StateMachine) FinalCall(ctx context.Context, sessionID string) error {
	_, err := sm.Apply(ctx, sessionID, TransitionFinalCall)

	return err
}

// StartRace sets the session GREEN and returns the race start time it recorded.
func (sm *StateMachine) StartRace(ctx context.Context, sessionID string) (int64, error) {
	result, err := sm.Apply(ctx, sessionID, TransitionStartRace)

	if err != nil {
		return 0, err
	}

	return result.RaceStartEpochMS, nil
}

func (sm *StateMachine) Finish(ctx context.Context, sessionID string) error {
	_, err := sm.Apply(ctx, sessionID, TransitionFinish)

	return err
}

func (sm *StateMachine) Reset(ctx context.Context, sessionID string) error {
	_, err := sm.Apply(ctx, sessionID, TransitionReset)

	return err
}

type TransitionResult struct {
	State SessionState
	Event *Event

	// RaceStartEpochMS is only set by TransitionStartRace.
	RaceStartEpochMS int64
}

// Apply performs transition t on the session. If the session update fails no
// event is written. If the audit event cannot be written its error is returned,
// though the state change has already been committed.
func (sm *StateMachine) Apply(ctx context.Context, sessionID string, t Transition) (*TransitionResult, error) {
	patch := SessionPatch{State: t.Target()}

	var eventType EventType
	var payload interface{}
	var startEpochMS int64

	switch t {
	case TransitionFinalCall:
		eventType = EventFinalCall
	case TransitionStartRace:
		startEpochMS = EpochMS(sm.now())

		patch.SetRaceStart = true
		patch.RaceStartEpochMS = &startEpochMS
		eventType = EventRaceStart
		payload = RaceStartPayload{StartEpochMS: startEpochMS}
	case TransitionFinish:
		eventType = EventFlagChange
		payload = FlagChangePayload{State: StateFinished}
	case TransitionReset:
		patch.SetRaceStart = true
		eventType = EventResetSession
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransition, t)
	}

	event, err := NewEvent(sessionID, eventType, payload)

	if err != nil {
		return nil, err
	}

	if err := sm.store.UpdateSession(ctx, sessionID, patch); err != nil {
		return nil, err
	}

	saved, err := sm.store.InsertEvent(ctx, event)

	if err != nil {
		sm.logger.WithError(err).Errorf("Session %s moved to %s but the %s event could not be written", sessionID, patch.State, eventType)
		return nil, err
	}

	sm.logger.Infof("Session %s moved to %s", sessionID, patch.State)

	return &TransitionResult{State: patch.State, Event: saved, RaceStartEpochMS: startEpochMS}, nil
}
