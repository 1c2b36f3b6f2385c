// Package fsm implements the flight operation state machine defined by
// ASTM F3548-21 strategic coordination. States and events are closed sets;
// Next is a pure function so transitions can be verified before they are
// persisted.
package fsm

// State is the numeric operation state stored on a flight declaration.
type State int

const (
	StateNotSubmitted  State = 0
	StateAccepted      State = 1
	StateActivated     State = 2
	StateNonconforming State = 3
	StateContingent    State = 4
	StateEnded         State = 5
	StateWithdrawn     State = 6
	StateCancelled     State = 7
	StateRejected      State = 8

	// StateInvalid is returned for numeric states outside the closed set.
	// It never transitions.
	StateInvalid State = -1
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotSubmitted:
		return "Not Submitted"
	case StateAccepted:
		return "Accepted"
	case StateActivated:
		return "Activated"
	case StateNonconforming:
		return "Nonconforming"
	case StateContingent:
		return "Contingent"
	case StateEnded:
		return "Ended"
	case StateWithdrawn:
		return "Withdrawn"
	case StateCancelled:
		return "Cancelled"
	case StateRejected:
		return "Rejected"
	default:
		return "Invalid"
	}
}

// FromInt maps a stored numeric state onto the closed set. Unknown values
// map to StateInvalid.
func FromInt(v int) State {
	s := State(v)
	switch s {
	case StateNotSubmitted, StateAccepted, StateActivated, StateNonconforming,
		StateContingent, StateEnded, StateWithdrawn, StateCancelled, StateRejected:
		return s
	default:
		return StateInvalid
	}
}

// Event drives a transition of the state machine.
type Event string

const (
	EventDSSAccepts                  Event = "dss_accepts"
	EventOperatorActivates           Event = "operator_activates"
	EventOperatorConfirmsEnded       Event = "operator_confirms_ended"
	EventUADepartsEarlyLate          Event = "ua_departs_early_late_outside_op_intent"
	EventUAExitsCoordinatedOpIntent  Event = "ua_exits_coordinated_op_intent"
	EventOperatorInitiatesContingent Event = "operator_initiates_contingent"
	EventOperatorReturnToOpIntent    Event = "operator_return_to_coordinated_op_intent"
	EventOperatorConfirmsContingent  Event = "operator_confirms_contingent"
	EventBlenderConfirmsContingent   Event = "blender_confirms_contingent"
	EventTimeout                     Event = "timeout"
)

// transitions is the authoritative (state, event) -> state table.
// Unlisted pairs are no-ops.
var transitions = map[State]map[Event]State{
	StateNotSubmitted: {
		EventDSSAccepts: StateAccepted,
	},
	StateAccepted: {
		EventOperatorActivates:     StateActivated,
		EventOperatorConfirmsEnded: StateEnded,
		EventUADepartsEarlyLate:    StateNonconforming,
	},
	StateActivated: {
		EventOperatorConfirmsEnded:       StateEnded,
		EventUAExitsCoordinatedOpIntent:  StateNonconforming,
		EventOperatorInitiatesContingent: StateContingent,
		EventBlenderConfirmsContingent:   StateContingent,
	},
	StateNonconforming: {
		EventOperatorReturnToOpIntent:   StateActivated,
		EventOperatorConfirmsEnded:      StateEnded,
		EventTimeout:                    StateContingent,
		EventOperatorConfirmsContingent: StateContingent,
	},
	StateContingent: {
		EventOperatorConfirmsEnded: StateEnded,
	},
}

// Next returns the state reached from the given state by the event.
// Unlisted pairs (including every event on Ended and Invalid) return the
// current state unchanged.
func Next(state State, event Event) State {
	if state == StateInvalid {
		return StateInvalid
	}
	if targets, ok := transitions[state]; ok {
		if next, ok := targets[event]; ok {
			return next
		}
	}
	return state
}

// CanTransition reports whether the event moves the state machine to a
// different state.
func CanTransition(state State, event Event) bool {
	return Next(state, event) != state
}

// IsTerminal reports whether no event can leave the state.
func IsTerminal(state State) bool {
	_, ok := transitions[state]
	return !ok && state != StateInvalid
}

// OperatorEventForState maps the operator-facing target states onto the
// event an operator command implies. Operators may only request
// Activated(2), Contingent(4), or Ended(5).
func OperatorEventForState(target State) (Event, bool) {
	switch target {
	case StateEnded:
		return EventOperatorConfirmsEnded, true
	case StateActivated:
		return EventOperatorActivates, true
	case StateContingent:
		return EventOperatorInitiatesContingent, true
	default:
		return "", false
	}
}
