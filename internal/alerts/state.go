// Package alerts implements the debounced per-(server,metric) and
// per-service alert state machine and the alert actor that drives it
// from the broadcast busses.
package alerts

// Phase is a position in the debounce state machine.
type Phase string

const (
	PhaseOk        Phase = "ok"
	PhaseExceeding Phase = "exceeding"
	PhasePending   Phase = "pending"
)

// Transition is the side effect Evaluate signals for the caller to act
// on (deliver a Trigger/Recovery alert, or do nothing).
type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionTrigger   Transition = "trigger"
	TransitionRecovery  Transition = "recovery"
)

// State is the debounce state for one (server, metric_kind) or one
// service — a streak counter plus the current phase.
type State struct {
	Phase  Phase
	Streak int
}

// Evaluate applies one observation to prior and returns the resulting
// state and any transition to act on. exceeds means "value > threshold"
// for metrics, or "observed Down" for services (Degraded folded into
// Down by the caller when configured to).
//
// grace is the number of consecutive violations tolerated before a
// trigger fires: grace+1 total violations trigger. grace == 0 means
// "alert on the first violation" (Ok transitions straight to Pending).
func Evaluate(prior State, exceeds bool, grace int) (State, Transition) {
	if !exceeds {
		if prior.Phase == PhasePending {
			return State{Phase: PhaseOk}, TransitionRecovery
		}
		return State{Phase: PhaseOk}, TransitionNone
	}

	switch prior.Phase {
	case PhaseExceeding:
		if prior.Streak < grace {
			return State{Phase: PhaseExceeding, Streak: prior.Streak + 1}, TransitionNone
		}
		return State{Phase: PhasePending}, TransitionTrigger

	case PhasePending:
		return State{Phase: PhasePending}, TransitionNone

	default: // PhaseOk (including the zero value)
		if grace <= 0 {
			return State{Phase: PhasePending}, TransitionTrigger
		}
		return State{Phase: PhaseExceeding, Streak: 1}, TransitionNone
	}
}
