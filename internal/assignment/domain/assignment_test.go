package domain

import (
	"testing"
	"time"

	"dispatchcore/platform/apperr"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateCreated, StateOffered, true},
		{StateCreated, StateAccepted, true},
		{StateCreated, StateCancelled, true},
		{StateCreated, StateDeclined, false},
		{StateOffered, StateAccepted, true},
		{StateOffered, StateDeclined, true},
		{StateOffered, StateTimeout, true},
		{StateOffered, StateCancelled, true},
		{StateOffered, StateReassigned, false},
		{StateAccepted, StateDeclined, false},
		{StateAccepted, StateReassigned, false},
		{StateDeclined, StateReassigned, true},
		{StateTimeout, StateReassigned, true},
		{StateCancelled, StateReassigned, true},
		{StateReassigned, StateOffered, false},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestValidateTransitionResolvedOfferGetsAlreadyResolved(t *testing.T) {
	err := ValidateTransition(StateAccepted, StateDeclined)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !apperr.HasCode(err, apperr.CodeAlreadyResolved) {
		t.Fatalf("expected ALREADY_RESOLVED, got %v", apperr.GetCode(err))
	}
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected a conflict, got kind %v", apperr.GetKind(err))
	}
}

func TestValidateTransitionUnresolvedGetsInvalidStateTransition(t *testing.T) {
	err := ValidateTransition(StateCreated, StateDeclined)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !apperr.HasCode(err, apperr.CodeInvalidStateTransition) {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %v", apperr.GetCode(err))
	}
}

func TestValidateTransitionAllowsGraphEdges(t *testing.T) {
	if err := ValidateTransition(StateOffered, StateAccepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateAccepted, StateReassigned} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []State{StateCreated, StateOffered, StateDeclined, StateTimeout, StateCancelled} {
		if IsTerminal(s) {
			t.Errorf("expected %s to allow further transitions", s)
		}
	}
}

func TestIsResolved(t *testing.T) {
	for _, s := range []State{StateAccepted, StateDeclined, StateTimeout} {
		if !IsResolved(s) {
			t.Errorf("expected %s to count as resolved", s)
		}
	}
	for _, s := range []State{StateCreated, StateOffered, StateCancelled, StateReassigned} {
		if IsResolved(s) {
			t.Errorf("expected %s not to count as resolved", s)
		}
	}
}

func TestOfferExpired(t *testing.T) {
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		a    Assignment
		want bool
	}{
		{"offered and past deadline", Assignment{State: StateOffered, OfferExpiresAt: &past}, true},
		{"offered exactly at deadline", Assignment{State: StateOffered, OfferExpiresAt: &now}, true},
		{"offered before deadline", Assignment{State: StateOffered, OfferExpiresAt: &future}, false},
		{"offered without deadline", Assignment{State: StateOffered}, false},
		{"accepted past deadline", Assignment{State: StateAccepted, OfferExpiresAt: &past}, false},
		{"created past deadline", Assignment{State: StateCreated, OfferExpiresAt: &past}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.OfferExpired(now); got != tc.want {
				t.Fatalf("OfferExpired = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidMode(t *testing.T) {
	for _, m := range []Mode{ModeDirect, ModeOffer, ModeBroadcast, ModeAutoAccept} {
		if !ValidMode(m) {
			t.Errorf("expected %s to be valid", m)
		}
	}
	if ValidMode(Mode("PIGEON")) {
		t.Error("expected unknown mode to be invalid")
	}
}
