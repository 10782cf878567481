// Package ledger implements the marketplace offer ledger.
//
// The ledger owns the listing/purchase protocol: it validates each
// operation, computes the market fee, and hands the resulting state
// change to storage as one atomic mutation. Offers are identified by a
// strictly increasing 1-based sequence and are never deleted; a sale
// flips the sold flag exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"time"

	apperr "github.com/mintbay/mintbay/internal/errors"
	"github.com/mintbay/mintbay/internal/market/event"
	"github.com/mintbay/mintbay/internal/market/storage"
)

// Store is the persistence surface the ledger drives.
type Store interface {
	GetToken(ctx context.Context, collection string, tokenID uint64) (storage.Token, error)
	IsOperator(ctx context.Context, owner, operator string) (bool, error)
	GetOffer(ctx context.Context, offerID uint64) (storage.Offer, error)
	OfferCount(ctx context.Context) (uint64, error)
	CreateListedOffer(ctx context.Context, offer storage.Offer, escrow string, evt event.Event) error
	SettlePurchase(ctx context.Context, offerID uint64, buyer string, paid uint64, feeRecipient, escrow string, evt event.Event) error
}

// Config fixes the ledger's fee policy and accounts for its lifetime.
type Config struct {
	// FeePercent is the integer market fee percentage charged on the ask.
	FeePercent uint64
	// FeeRecipient receives the fee portion of every sale.
	FeeRecipient string
	// Escrow is the account that holds custody of every listed token.
	Escrow string
}

// Ledger enforces the marketplace listing and purchase protocol.
type Ledger struct {
	mu    sync.Mutex
	store Store
	clock func() time.Time

	feePercent   uint64
	feeRecipient string
	escrow       string
}

// New creates a ledger over the given store and fee configuration.
func New(store Store, cfg Config) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.FeePercent > 100 {
		return nil, fmt.Errorf("fee percent must be at most 100")
	}
	feeRecipient := strings.TrimSpace(cfg.FeeRecipient)
	if feeRecipient == "" {
		return nil, fmt.Errorf("fee recipient is required")
	}
	escrow := strings.TrimSpace(cfg.Escrow)
	if escrow == "" {
		return nil, fmt.Errorf("escrow account is required")
	}
	return &Ledger{
		store:        store,
		clock:        time.Now,
		feePercent:   cfg.FeePercent,
		feeRecipient: feeRecipient,
		escrow:       escrow,
	}, nil
}

// FeePercent returns the fixed market fee percentage.
func (l *Ledger) FeePercent() uint64 {
	return l.feePercent
}

// Escrow returns the account holding custody of listed tokens.
func (l *Ledger) Escrow() string {
	return l.escrow
}

// List escrows the token and records a new offer at the given ask.
//
// The seller must currently hold the token and must have approved the
// escrow account as an operator beforehand; the ledger never grants
// itself transfer rights.
func (l *Ledger) List(ctx context.Context, collection string, tokenID, price uint64, seller string) (storage.Offer, error) {
	collection = strings.TrimSpace(collection)
	seller = strings.TrimSpace(seller)
	if collection == "" || seller == "" {
		return storage.Offer{}, fmt.Errorf("collection and seller are required")
	}
	if price == 0 {
		return storage.Offer{}, apperr.New(apperr.CodeOfferInvalidPrice, "price must be greater than zero")
	}
	if _, err := l.total(price); err != nil {
		return storage.Offer{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	token, err := l.store.GetToken(ctx, collection, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Offer{}, apperr.New(apperr.CodeAssetNotFound, "token does not exist")
		}
		return storage.Offer{}, fmt.Errorf("load token: %w", err)
	}
	if token.Holder != seller {
		return storage.Offer{}, apperr.New(apperr.CodeAssetNotOwner, "caller does not hold the token")
	}
	approved, err := l.store.IsOperator(ctx, seller, l.escrow)
	if err != nil {
		return storage.Offer{}, fmt.Errorf("check escrow approval: %w", err)
	}
	if !approved {
		return storage.Offer{}, apperr.New(apperr.CodeAssetTransferNotApproved, "escrow transfer has not been approved")
	}

	count, err := l.store.OfferCount(ctx)
	if err != nil {
		return storage.Offer{}, fmt.Errorf("offer count: %w", err)
	}
	now := l.clock().UTC()
	offer := storage.Offer{
		ID:         count + 1,
		Collection: collection,
		TokenID:    tokenID,
		Price:      price,
		Seller:     seller,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	evt := event.NewOffered(now, offer.ID, collection, tokenID, price, seller)
	if err := l.store.CreateListedOffer(ctx, offer, l.escrow, evt); err != nil {
		if errors.Is(err, storage.ErrNotAuthorized) {
			return storage.Offer{}, apperr.New(apperr.CodeAssetTransferNotApproved, "escrow transfer has not been approved")
		}
		return storage.Offer{}, fmt.Errorf("create listed offer: %w", err)
	}
	return offer, nil
}

// TotalPrice returns the amount a buyer must pay for the offer: the ask
// plus the market fee, computed on the ask in integer base units.
func (l *Ledger) TotalPrice(ctx context.Context, offerID uint64) (uint64, error) {
	offer, err := l.getOffer(ctx, offerID)
	if err != nil {
		return 0, err
	}
	return l.total(offer.Price)
}

// Purchase settles an offer for the caller at the given payment.
//
// Anything paid above the ask goes to the fee recipient; overpayment is
// never refunded. The checks run in a fixed order so each failure mode
// maps to one distinct error code.
func (l *Ledger) Purchase(ctx context.Context, offerID, paid uint64, buyer string) (storage.Offer, error) {
	buyer = strings.TrimSpace(buyer)
	if buyer == "" {
		return storage.Offer{}, fmt.Errorf("buyer is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	offer, err := l.getOffer(ctx, offerID)
	if err != nil {
		return storage.Offer{}, err
	}
	total, err := l.total(offer.Price)
	if err != nil {
		return storage.Offer{}, err
	}
	if paid < total {
		return storage.Offer{}, apperr.WithMetadata(
			apperr.CodeOfferInsufficientPayment,
			"payment does not cover item price and market fee",
			map[string]string{"required": strconv.FormatUint(total, 10)},
		)
	}
	if offer.Sold {
		return storage.Offer{}, apperr.New(apperr.CodeOfferAlreadySold, "item already sold")
	}

	now := l.clock().UTC()
	evt := event.NewBought(now, offer.ID, offer.Collection, offer.TokenID, offer.Price, offer.Seller, buyer)
	if err := l.store.SettlePurchase(ctx, offerID, buyer, paid, l.feeRecipient, l.escrow, evt); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return storage.Offer{}, apperr.New(apperr.CodeOfferNotFound, "item doesn't exist")
		case errors.Is(err, storage.ErrAlreadySold):
			return storage.Offer{}, apperr.New(apperr.CodeOfferAlreadySold, "item already sold")
		case errors.Is(err, storage.ErrInsufficientFunds):
			return storage.Offer{}, apperr.New(apperr.CodeAccountInsufficientFunds, "account balance cannot cover the payment")
		}
		return storage.Offer{}, fmt.Errorf("settle purchase: %w", err)
	}

	offer.Sold = true
	offer.UpdatedAt = now
	return offer, nil
}

// GetOffer returns one offer by id.
func (l *Ledger) GetOffer(ctx context.Context, offerID uint64) (storage.Offer, error) {
	return l.getOffer(ctx, offerID)
}

// OfferCount returns how many offers have ever been created.
func (l *Ledger) OfferCount(ctx context.Context) (uint64, error) {
	count, err := l.store.OfferCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("offer count: %w", err)
	}
	return count, nil
}

func (l *Ledger) getOffer(ctx context.Context, offerID uint64) (storage.Offer, error) {
	offer, err := l.store.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Offer{}, apperr.New(apperr.CodeOfferNotFound, "item doesn't exist")
		}
		return storage.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

// total computes price*(100+feePercent)/100 without intermediate overflow.
func (l *Ledger) total(price uint64) (uint64, error) {
	hi, lo := bits.Mul64(price, 100+l.feePercent)
	if hi >= 100 {
		return 0, apperr.New(apperr.CodeAmountOverflow, "total price exceeds the representable range")
	}
	quo, _ := bits.Div64(hi, lo, 100)
	return quo, nil
}
