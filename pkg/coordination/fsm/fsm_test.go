package fsm

import "testing"

func TestNext(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
		want  State
	}{
		{"dss accepts submission", StateNotSubmitted, EventDSSAccepts, StateAccepted},
		{"operator activates accepted", StateAccepted, EventOperatorActivates, StateActivated},
		{"operator ends accepted", StateAccepted, EventOperatorConfirmsEnded, StateEnded},
		{"ua departs early from accepted", StateAccepted, EventUADepartsEarlyLate, StateNonconforming},
		{"operator ends activated", StateActivated, EventOperatorConfirmsEnded, StateEnded},
		{"ua exits op intent", StateActivated, EventUAExitsCoordinatedOpIntent, StateNonconforming},
		{"operator initiates contingent", StateActivated, EventOperatorInitiatesContingent, StateContingent},
		{"service confirms contingent", StateActivated, EventBlenderConfirmsContingent, StateContingent},
		{"return to coordinated intent", StateNonconforming, EventOperatorReturnToOpIntent, StateActivated},
		{"operator ends nonconforming", StateNonconforming, EventOperatorConfirmsEnded, StateEnded},
		{"nonconforming times out", StateNonconforming, EventTimeout, StateContingent},
		{"operator confirms contingent", StateNonconforming, EventOperatorConfirmsContingent, StateContingent},
		{"operator ends contingent", StateContingent, EventOperatorConfirmsEnded, StateEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.from, tt.event); got != tt.want {
				t.Errorf("Next(%v, %q) = %v, want %v", tt.from, tt.event, got, tt.want)
			}
		})
	}
}

func TestNextNoOps(t *testing.T) {
	t.Run("unlisted pair returns current state", func(t *testing.T) {
		if got := Next(StateAccepted, EventTimeout); got != StateAccepted {
			t.Errorf("expected no-op, got %v", got)
		}
	})

	t.Run("ended is terminal", func(t *testing.T) {
		events := []Event{
			EventDSSAccepts, EventOperatorActivates, EventOperatorConfirmsEnded,
			EventUADepartsEarlyLate, EventUAExitsCoordinatedOpIntent,
			EventOperatorInitiatesContingent, EventOperatorReturnToOpIntent,
			EventOperatorConfirmsContingent, EventBlenderConfirmsContingent, EventTimeout,
		}
		for _, event := range events {
			if got := Next(StateEnded, event); got != StateEnded {
				t.Errorf("Next(Ended, %q) = %v, want Ended", event, got)
			}
		}
		if !IsTerminal(StateEnded) {
			t.Error("expected Ended to be terminal")
		}
	})

	t.Run("invalid never transitions", func(t *testing.T) {
		if got := Next(StateInvalid, EventDSSAccepts); got != StateInvalid {
			t.Errorf("expected Invalid, got %v", got)
		}
	})

	t.Run("withdrawn and cancelled have no outgoing transitions", func(t *testing.T) {
		if got := Next(StateWithdrawn, EventOperatorConfirmsEnded); got != StateWithdrawn {
			t.Errorf("expected Withdrawn, got %v", got)
		}
		if got := Next(StateCancelled, EventOperatorConfirmsEnded); got != StateCancelled {
			t.Errorf("expected Cancelled, got %v", got)
		}
	})
}

func TestFromInt(t *testing.T) {
	t.Run("known states round-trip", func(t *testing.T) {
		for v := 0; v <= 8; v++ {
			if got := FromInt(v); int(got) != v {
				t.Errorf("FromInt(%d) = %v", v, got)
			}
		}
	})

	t.Run("unknown state maps to invalid", func(t *testing.T) {
		if got := FromInt(42); got != StateInvalid {
			t.Errorf("FromInt(42) = %v, want Invalid", got)
		}
		if got := FromInt(-3); got != StateInvalid {
			t.Errorf("FromInt(-3) = %v, want Invalid", got)
		}
	})
}

func TestOperatorEventForState(t *testing.T) {
	tests := []struct {
		target State
		want   Event
		ok     bool
	}{
		{StateActivated, EventOperatorActivates, true},
		{StateContingent, EventOperatorInitiatesContingent, true},
		{StateEnded, EventOperatorConfirmsEnded, true},
		{StateWithdrawn, "", false},
		{StateCancelled, "", false},
		{StateAccepted, "", false},
		{StateRejected, "", false},
	}
	for _, tt := range tests {
		event, ok := OperatorEventForState(tt.target)
		if ok != tt.ok || event != tt.want {
			t.Errorf("OperatorEventForState(%v) = (%q, %v), want (%q, %v)", tt.target, event, ok, tt.want, tt.ok)
		}
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StateAccepted, EventOperatorActivates) {
		t.Error("expected Accepted + operator_activates to transition")
	}
	if CanTransition(StateAccepted, EventOperatorInitiatesContingent) {
		t.Error("expected Accepted + operator_initiates_contingent to be a no-op")
	}
}
