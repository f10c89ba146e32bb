// Package domain holds the assignment model and its state machine.
// Everything in here is pure: persistence and side effects live in the
// repository and service layers.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatchcore/platform/apperr"
)

type State string

const (
	StateCreated    State = "CREATED"
	StateOffered    State = "OFFERED"
	StateAccepted   State = "ACCEPTED"
	StateDeclined   State = "DECLINED"
	StateTimeout    State = "TIMEOUT"
	StateCancelled  State = "CANCELLED"
	StateReassigned State = "REASSIGNED"
)

type Mode string

const (
	// ModeDirect assigns without asking, the provider is committed
	// immediately.
	ModeDirect Mode = "DIRECT"
	// ModeOffer asks a single provider and waits for a response.
	ModeOffer Mode = "OFFER"
	// ModeBroadcast offers to several providers at once, first
	// acceptance wins.
	ModeBroadcast Mode = "BROADCAST"
	// ModeAutoAccept behaves like an offer that the tenant has
	// configured to accept on the provider's behalf.
	ModeAutoAccept Mode = "AUTO_ACCEPT"
)

// Assignment links a service order to a provider. Rank records the
// provider's position in the candidate ranking at dispatch time.
type Assignment struct {
	ID             uuid.UUID
	ServiceOrderID uuid.UUID
	ProviderID     uuid.UUID
	WorkTeamID     *uuid.UUID
	CountryCode    string
	BusinessUnit   string
	State          State
	Mode           Mode
	Rank           int
	Score          float64
	DeclineReason  *string
	CorrelationID  string
	FunnelData     json.RawMessage
	OfferedAt      *time.Time
	OfferExpiresAt *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// transitions is the full state graph. A state absent from the map is
// terminal for outgoing transitions.
var transitions = map[State][]State{
	StateCreated:   {StateOffered, StateAccepted, StateCancelled},
	StateOffered:   {StateAccepted, StateDeclined, StateTimeout, StateCancelled},
	StateDeclined:  {StateReassigned},
	StateTimeout:   {StateReassigned},
	StateCancelled: {StateReassigned},
}

// CanTransition reports whether moving from one state to another is
// allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a conflict error when the move is not in
// the state graph. Attempts to leave an already resolved offer get the
// dedicated ALREADY_RESOLVED code so callers can surface it.
func ValidateTransition(from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	err := apperr.Conflict(fmt.Sprintf("cannot transition assignment from %s to %s", from, to))
	if IsResolved(from) {
		return err.WithCode(apperr.CodeAlreadyResolved)
	}
	return err.WithCode(apperr.CodeInvalidStateTransition)
}

// IsResolved reports whether the offer has reached an answer:
// accepted, declined or timed out.
func IsResolved(s State) bool {
	return s == StateAccepted || s == StateDeclined || s == StateTimeout
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}

// IsOpen reports whether the assignment still awaits an outcome.
func (a Assignment) IsOpen() bool {
	return a.State == StateCreated || a.State == StateOffered
}

// OfferExpired reports whether an offered assignment's response window
// has passed. Only offered assignments can expire.
func (a Assignment) OfferExpired(now time.Time) bool {
	return a.State == StateOffered &&
		a.OfferExpiresAt != nil &&
		!now.Before(*a.OfferExpiresAt)
}

// ValidMode reports whether the dispatch mode is known.
func ValidMode(m Mode) bool {
	switch m {
	case ModeDirect, ModeOffer, ModeBroadcast, ModeAutoAccept:
		return true
	}
	return false
}
