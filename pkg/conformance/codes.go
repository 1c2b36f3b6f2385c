// Package conformance evaluates live telemetry and authorization status
// against a declared flight operation and classifies failures with the
// standard check codes.
package conformance

import "github.com/openutm/flightdeck/pkg/coordination/fsm"

// Code identifies a failed conformance check. CodeOK means the operation is
// conformant.
type Code string

const (
	CodeOK Code = "OK"

	// Telemetry checks
	CodeC3  Code = "C3"  // aircraft id mismatch
	CodeC4  Code = "C4"  // state not in {Accepted, Activated, Nonconforming}
	CodeC5  Code = "C5"  // state not Activated when telemetry arrives
	CodeC6  Code = "C6"  // telemetry timestamp outside the operation window
	CodeC7a Code = "C7a" // position outside the declared volumes
	CodeC7b Code = "C7b" // altitude outside the containing volume's band

	// Authorization checks
	CodeC9a Code = "C9a" // telemetry stale for an active operation
	CodeC9b Code = "C9b" // telemetry never received
	CodeC10 Code = "C10" // state not in {Activated, Nonconforming, Contingent}
	CodeC11 Code = "C11" // no flight authorization record
)

// Outcome is the event and target state a failed check implies.
type Outcome struct {
	Event  fsm.Event
	Target fsm.State
}

// outcomes maps each failure code to its event and target state.
var outcomes = map[Code]Outcome{
	CodeC3:  {fsm.EventBlenderConfirmsContingent, fsm.StateContingent},
	CodeC4:  {fsm.EventBlenderConfirmsContingent, fsm.StateNonconforming},
	CodeC5:  {fsm.EventBlenderConfirmsContingent, fsm.StateNonconforming},
	CodeC6:  {fsm.EventUADepartsEarlyLate, fsm.StateNonconforming},
	CodeC7a: {fsm.EventUAExitsCoordinatedOpIntent, fsm.StateNonconforming},
	CodeC7b: {fsm.EventUAExitsCoordinatedOpIntent, fsm.StateNonconforming},
	CodeC9a: {fsm.EventTimeout, fsm.StateContingent},
	CodeC9b: {fsm.EventBlenderConfirmsContingent, fsm.StateContingent},
	CodeC10: {fsm.EventBlenderConfirmsContingent, fsm.StateContingent},
	CodeC11: {fsm.EventBlenderConfirmsContingent, fsm.StateContingent},
}

// OutcomeForCode returns the event and target state for a failure code.
// CodeOK and unknown codes return false.
func OutcomeForCode(code Code) (Outcome, bool) {
	outcome, ok := outcomes[code]
	return outcome, ok
}
