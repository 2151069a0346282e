package pipeline

import "fmt"

type State string

const (
	StateIdle         State = "idle"
	StateTriggered    State = "triggered"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateClassifying  State = "classifying"
	StateValidating   State = "validating"
	StateExecuting    State = "executing"
	StateResponding   State = "responding"
	StateAborting     State = "aborting"
)

var transitions = map[State][]State{
	StateIdle:         {StateTriggered},
	StateTriggered:    {StateRecording},
	StateRecording:    {StateTranscribing},
	StateTranscribing: {StateClassifying, StateResponding},
	StateClassifying:  {StateValidating},
	StateValidating:   {StateExecuting, StateResponding},
	StateExecuting:    {StateResponding},
	StateResponding:   {StateIdle},
	StateAborting:     {StateIdle},
}

// Transition validates a move between states. Aborting is reachable from
// every state except idle.
func Transition(current, next State) error {
	if next == StateAborting {
		if current == StateIdle || current == StateAborting {
			return invalidTransition(current, next)
		}
		return nil
	}
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("unknown state %q", current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return invalidTransition(current, next)
}

func invalidTransition(current, next State) error {
	return fmt.Errorf("invalid transition: %s --> %s", current, next)
}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeNoSpeech Outcome = "no_speech"
	OutcomeRejected Outcome = "rejected"
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
	OutcomeAborted  Outcome = "aborted"
)
