// Package storage defines persistence contracts for marketplace state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mintbay/mintbay/internal/market/event"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNotAuthorized indicates the caller may not move the token.
	ErrNotAuthorized = errors.New("caller is not holder or approved operator")
	// ErrAlreadySold indicates the offer was settled before this mutation ran.
	ErrAlreadySold = errors.New("offer already sold")
	// ErrInsufficientFunds indicates the account balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient account balance")
)

// Collection stores one named token collection.
type Collection struct {
	ID        string
	Name      string
	Symbol    string
	CreatedAt time.Time
}

// Token stores one minted token. IDs are 1-based per collection.
type Token struct {
	Collection string
	ID         uint64
	URI        string
	Holder     string
	MintedAt   time.Time
}

// Account stores one account balance in base units.
type Account struct {
	ID      string
	Balance uint64
}

// Offer stores one marketplace listing. Offers are append-only audit
// records: a sale flips Sold, nothing ever deletes a row.
type Offer struct {
	ID         uint64
	Collection string
	TokenID    uint64
	Price      uint64
	Seller     string
	Sold       bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OfferPage stores one page of offer records.
type OfferPage struct {
	Offers        []Offer
	NextPageToken string
}

// EventPage stores one page of audit events.
type EventPage struct {
	Events        []event.Event
	NextPageToken string
}

// CollectionStore persists token collections.
type CollectionStore interface {
	CreateCollection(ctx context.Context, col Collection) error
	GetCollection(ctx context.Context, id string) (Collection, error)
}

// TokenStore persists tokens, custody, and operator approvals.
type TokenStore interface {
	// MintToken assigns the next 1-based token id in the collection to holder.
	MintToken(ctx context.Context, collection, uri, holder string, at time.Time) (Token, error)
	GetToken(ctx context.Context, collection string, tokenID uint64) (Token, error)
	// TransferToken moves custody. It fails with ErrNotAuthorized unless
	// caller is the current holder or an approved operator of the holder.
	TransferToken(ctx context.Context, collection string, tokenID uint64, from, to, caller string) error
	// ApproveOperator grants operator blanket transfer rights over every
	// token owner holds. Idempotent.
	ApproveOperator(ctx context.Context, owner, operator string) error
	IsOperator(ctx context.Context, owner, operator string) (bool, error)
}

// AccountStore persists account balances.
type AccountStore interface {
	// Deposit credits amount to the account, creating it when absent.
	Deposit(ctx context.Context, account string, amount uint64) (Account, error)
	GetAccount(ctx context.Context, account string) (Account, error)
}

// OfferStore persists offers and their settlement.
type OfferStore interface {
	GetOffer(ctx context.Context, offerID uint64) (Offer, error)
	OfferCount(ctx context.Context) (uint64, error)
	ListOffers(ctx context.Context, pageSize int, pageToken string) (OfferPage, error)
	// CreateListedOffer records the offer, moves the token from the seller
	// into escrow custody, and appends evt, all in one transaction. The
	// offer ID must already be assigned by the caller.
	CreateListedOffer(ctx context.Context, offer Offer, escrow string, evt event.Event) error
	// SettlePurchase marks the offer sold, moves the token from escrow to
	// the buyer, debits the buyer paid base units, credits the seller the
	// ask and the fee recipient the remainder, and appends evt, all in one
	// transaction. Fails with ErrAlreadySold if the offer settled already
	// and ErrInsufficientFunds if the buyer cannot cover paid.
	SettlePurchase(ctx context.Context, offerID uint64, buyer string, paid uint64, feeRecipient, escrow string, evt event.Event) error
}

// EventStore reads the append-only audit journal.
type EventStore interface {
	ListEvents(ctx context.Context, pageSize int, pageToken string) (EventPage, error)
}

// MarketStore is the full persistence surface of the marketplace service.
type MarketStore interface {
	CollectionStore
	TokenStore
	AccountStore
	OfferStore
	EventStore
}
