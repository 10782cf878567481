// Package event defines the marketplace's append-only audit event model.
//
// Events represent facts that have occurred, not commands/requests. Once
// appended they are immutable; the log is never compacted or rewritten.
package event

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies the type of a marketplace event.
type Type string

const (
	// TypeOffered records a token entering escrow with an asking price.
	TypeOffered Type = "market.offered"
	// TypeBought records a completed purchase of an offer.
	TypeBought Type = "market.bought"
)

// IsValid reports whether the event type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeOffered, TypeBought:
		return true
	}
	return false
}

// Event is one immutable entry in the marketplace audit journal.
type Event struct {
	// ID is the globally unique event identity.
	ID string
	// Seq is the journal sequence number (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Type identifies what happened.
	Type Type
	// Timestamp is when the event occurred.
	Timestamp time.Time

	// OfferID is the offer this event belongs to.
	OfferID uint64
	// Collection identifies the token collection of the escrowed asset.
	Collection string
	// TokenID is the token within the collection.
	TokenID uint64
	// Price is the seller's ask in base units.
	Price uint64
	// Seller is the account that listed the token.
	Seller string
	// Buyer is the purchasing account. Empty for TypeOffered.
	Buyer string
}

// NewOffered builds an Offered event for a freshly listed offer.
func NewOffered(at time.Time, offerID uint64, collection string, tokenID, price uint64, seller string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeOffered,
		Timestamp:  at.UTC(),
		OfferID:    offerID,
		Collection: collection,
		TokenID:    tokenID,
		Price:      price,
		Seller:     seller,
	}
}

// NewBought builds a Bought event for a settled purchase.
func NewBought(at time.Time, offerID uint64, collection string, tokenID, price uint64, seller, buyer string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeBought,
		Timestamp:  at.UTC(),
		OfferID:    offerID,
		Collection: collection,
		TokenID:    tokenID,
		Price:      price,
		Seller:     seller,
		Buyer:      buyer,
	}
}

// Validate checks structural invariants common to all event types.
func (e Event) Validate() bool {
	if strings.TrimSpace(e.ID) == "" || !e.Type.IsValid() {
		return false
	}
	if e.OfferID == 0 || strings.TrimSpace(e.Collection) == "" {
		return false
	}
	if strings.TrimSpace(e.Seller) == "" {
		return false
	}
	if e.Type == TypeBought && strings.TrimSpace(e.Buyer) == "" {
		return false
	}
	return true
}

// Sink receives events for durable recording.
type Sink interface {
	Record(ctx context.Context, evt Event) error
}
