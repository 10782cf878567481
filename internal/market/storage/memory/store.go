// Package memory provides an in-memory marketplace store for tests and
// single-process development. It mirrors the SQLite store's semantics,
// including transactional all-or-nothing mutations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mintbay/mintbay/internal/market/event"
	"github.com/mintbay/mintbay/internal/market/storage"
)

type tokenKey struct {
	collection string
	id         uint64
}

type approvalKey struct {
	owner    string
	operator string
}

// Store keeps all marketplace state in process memory behind one mutex.
type Store struct {
	mu          sync.Mutex
	collections map[string]storage.Collection
	tokens      map[tokenKey]storage.Token
	approvals   map[approvalKey]struct{}
	balances    map[string]uint64
	offers      map[uint64]storage.Offer
	maxOfferID  uint64
	events      []event.Event
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]storage.Collection),
		tokens:      make(map[tokenKey]storage.Token),
		approvals:   make(map[approvalKey]struct{}),
		balances:    make(map[string]uint64),
		offers:      make(map[uint64]storage.Offer),
	}
}

// CreateCollection inserts one token collection.
func (s *Store) CreateCollection(ctx context.Context, col storage.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(col.ID)
	if id == "" {
		return fmt.Errorf("collection id is required")
	}
	if _, ok := s.collections[id]; ok {
		return storage.ErrAlreadyExists
	}
	col.ID = id
	if col.CreatedAt.IsZero() {
		col.CreatedAt = time.Now().UTC()
	}
	s.collections[id] = col
	return nil
}

// GetCollection returns one collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (storage.Collection, error) {
	if err := ctx.Err(); err != nil {
		return storage.Collection{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[strings.TrimSpace(id)]
	if !ok {
		return storage.Collection{}, storage.ErrNotFound
	}
	return col, nil
}

// MintToken assigns the next token id in the collection to holder.
func (s *Store) MintToken(ctx context.Context, collection, uri, holder string, at time.Time) (storage.Token, error) {
	if err := ctx.Err(); err != nil {
		return storage.Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	collection = strings.TrimSpace(collection)
	if _, ok := s.collections[collection]; !ok {
		return storage.Token{}, storage.ErrNotFound
	}
	var nextID uint64 = 1
	for key := range s.tokens {
		if key.collection == collection && key.id >= nextID {
			nextID = key.id + 1
		}
	}
	if at.IsZero() {
		at = time.Now()
	}
	tok := storage.Token{
		Collection: collection,
		ID:         nextID,
		URI:        uri,
		Holder:     strings.TrimSpace(holder),
		MintedAt:   at.UTC(),
	}
	s.tokens[tokenKey{collection, nextID}] = tok
	return tok, nil
}

// GetToken returns one token by collection and id.
func (s *Store) GetToken(ctx context.Context, collection string, tokenID uint64) (storage.Token, error) {
	if err := ctx.Err(); err != nil {
		return storage.Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[tokenKey{strings.TrimSpace(collection), tokenID}]
	if !ok {
		return storage.Token{}, storage.ErrNotFound
	}
	return tok, nil
}

// TransferToken moves token custody after an authorization check.
func (s *Store) TransferToken(ctx context.Context, collection string, tokenID uint64, from, to, caller string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferLocked(collection, tokenID, from, to, caller)
}

func (s *Store) transferLocked(collection string, tokenID uint64, from, to, caller string) error {
	key := tokenKey{strings.TrimSpace(collection), tokenID}
	tok, ok := s.tokens[key]
	if !ok {
		return storage.ErrNotFound
	}
	if tok.Holder != from {
		return storage.ErrNotAuthorized
	}
	if caller != from {
		if _, approved := s.approvals[approvalKey{from, caller}]; !approved {
			return storage.ErrNotAuthorized
		}
	}
	tok.Holder = to
	s.tokens[key] = tok
	return nil
}

// ApproveOperator grants operator blanket transfer rights for owner.
func (s *Store) ApproveOperator(ctx context.Context, owner, operator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.approvals[approvalKey{strings.TrimSpace(owner), strings.TrimSpace(operator)}] = struct{}{}
	return nil
}

// IsOperator reports whether operator may move owner's tokens.
func (s *Store) IsOperator(ctx context.Context, owner, operator string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.approvals[approvalKey{strings.TrimSpace(owner), strings.TrimSpace(operator)}]
	return ok, nil
}

// Deposit credits amount to the account, creating it when absent.
func (s *Store) Deposit(ctx context.Context, account string, amount uint64) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account = strings.TrimSpace(account)
	s.balances[account] += amount
	return storage.Account{ID: account, Balance: s.balances[account]}, nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, account string) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account = strings.TrimSpace(account)
	balance, ok := s.balances[account]
	if !ok {
		return storage.Account{}, storage.ErrNotFound
	}
	return storage.Account{ID: account, Balance: balance}, nil
}

// GetOffer returns one offer by id.
func (s *Store) GetOffer(ctx context.Context, offerID uint64) (storage.Offer, error) {
	if err := ctx.Err(); err != nil {
		return storage.Offer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return storage.Offer{}, storage.ErrNotFound
	}
	return offer, nil
}

// OfferCount returns the highest assigned offer id.
func (s *Store) OfferCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOfferID, nil
}

// ListOffers returns one page of offers ordered by id.
func (s *Store) ListOffers(ctx context.Context, pageSize int, pageToken string) (storage.OfferPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.OfferPage{}, err
	}
	if pageSize <= 0 {
		return storage.OfferPage{}, fmt.Errorf("page size must be greater than zero")
	}
	afterID, err := parsePageToken(pageToken)
	if err != nil {
		return storage.OfferPage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint64, 0, len(s.offers))
	for id := range s.offers {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	page := storage.OfferPage{Offers: make([]storage.Offer, 0, pageSize)}
	for _, id := range ids {
		if len(page.Offers) == pageSize {
			page.NextPageToken = strconv.FormatUint(page.Offers[pageSize-1].ID, 10)
			break
		}
		page.Offers = append(page.Offers, s.offers[id])
	}
	return page, nil
}

// CreateListedOffer records the offer, escrows the token, and appends evt.
func (s *Store) CreateListedOffer(ctx context.Context, offer storage.Offer, escrow string, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.offers[offer.ID]; ok {
		return storage.ErrAlreadyExists
	}
	if err := s.transferLocked(offer.Collection, offer.TokenID, offer.Seller, escrow, offer.Seller); err != nil {
		return err
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now().UTC()
	}
	offer.UpdatedAt = offer.CreatedAt
	offer.Sold = false
	s.offers[offer.ID] = offer
	if offer.ID > s.maxOfferID {
		s.maxOfferID = offer.ID
	}
	s.appendEventLocked(evt)
	return nil
}

// SettlePurchase settles one offer atomically.
func (s *Store) SettlePurchase(ctx context.Context, offerID uint64, buyer string, paid uint64, feeRecipient, escrow string, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return storage.ErrNotFound
	}
	if offer.Sold {
		return storage.ErrAlreadySold
	}
	if s.balances[buyer] < paid {
		return storage.ErrInsufficientFunds
	}
	if err := s.transferLocked(offer.Collection, offer.TokenID, escrow, buyer, escrow); err != nil {
		return err
	}

	s.balances[buyer] -= paid
	s.balances[offer.Seller] += offer.Price
	s.balances[feeRecipient] += paid - offer.Price

	offer.Sold = true
	offer.UpdatedAt = time.Now().UTC()
	s.offers[offerID] = offer
	s.appendEventLocked(evt)
	return nil
}

func (s *Store) appendEventLocked(evt event.Event) {
	evt.Seq = uint64(len(s.events)) + 1
	s.events = append(s.events, evt)
}

// ListEvents returns one page of the audit journal ordered by sequence.
func (s *Store) ListEvents(ctx context.Context, pageSize int, pageToken string) (storage.EventPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventPage{}, err
	}
	if pageSize <= 0 {
		return storage.EventPage{}, fmt.Errorf("page size must be greater than zero")
	}
	afterSeq, err := parsePageToken(pageToken)
	if err != nil {
		return storage.EventPage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	page := storage.EventPage{Events: make([]event.Event, 0, pageSize)}
	for _, evt := range s.events {
		if evt.Seq <= afterSeq {
			continue
		}
		if len(page.Events) == pageSize {
			page.NextPageToken = strconv.FormatUint(page.Events[pageSize-1].Seq, 10)
			break
		}
		page.Events = append(page.Events, evt)
	}
	return page, nil
}

func parsePageToken(token string) (uint64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	return strconv.ParseUint(token, 10, 64)
}

var _ storage.MarketStore = (*Store)(nil)
