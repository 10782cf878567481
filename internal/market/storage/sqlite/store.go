// Package sqlite provides a SQLite-backed marketplace storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mintbay/mintbay/internal/market/event"
	"github.com/mintbay/mintbay/internal/market/storage"
	"github.com/mintbay/mintbay/internal/market/storage/sqlite/migrations"
	"github.com/mintbay/mintbay/internal/platform/storage/sqlitemigrate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists marketplace state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite marketplace store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// CreateCollection inserts one token collection.
func (s *Store) CreateCollection(ctx context.Context, col storage.Collection) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(col.ID)
	name := strings.TrimSpace(col.Name)
	symbol := strings.TrimSpace(col.Symbol)
	if id == "" {
		return fmt.Errorf("collection id is required")
	}
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if symbol == "" {
		return fmt.Errorf("collection symbol is required")
	}
	createdAt := col.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO collections (id, name, symbol, created_at) VALUES (?, ?, ?, ?)`,
		id, name, symbol, toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// GetCollection returns one collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (storage.Collection, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Collection{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Collection{}, fmt.Errorf("collection id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, name, symbol, created_at FROM collections WHERE id = ?`,
		id,
	)
	var col storage.Collection
	var createdAt int64
	if err := row.Scan(&col.ID, &col.Name, &col.Symbol, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Collection{}, storage.ErrNotFound
		}
		return storage.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	col.CreatedAt = fromMillis(createdAt)
	return col, nil
}

// MintToken assigns the next token id in the collection to holder.
func (s *Store) MintToken(ctx context.Context, collection, uri, holder string, at time.Time) (storage.Token, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Token{}, err
	}
	collection = strings.TrimSpace(collection)
	holder = strings.TrimSpace(holder)
	if collection == "" {
		return storage.Token{}, fmt.Errorf("collection id is required")
	}
	if holder == "" {
		return storage.Token{}, fmt.Errorf("holder is required")
	}
	mintedAt := at.UTC()
	if mintedAt.IsZero() {
		mintedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Token{}, fmt.Errorf("begin mint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM collections WHERE id = ?`, collection).Scan(&exists); err != nil {
		return storage.Token{}, fmt.Errorf("check collection: %w", err)
	}
	if exists == 0 {
		return storage.Token{}, storage.ErrNotFound
	}

	var nextID uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM tokens WHERE collection = ?`, collection).Scan(&nextID); err != nil {
		return storage.Token{}, fmt.Errorf("next token id: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO tokens (collection, id, uri, holder, minted_at) VALUES (?, ?, ?, ?, ?)`,
		collection, int64(nextID), uri, holder, toMillis(mintedAt),
	); err != nil {
		return storage.Token{}, fmt.Errorf("mint token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Token{}, fmt.Errorf("commit mint: %w", err)
	}
	return storage.Token{
		Collection: collection,
		ID:         nextID,
		URI:        uri,
		Holder:     holder,
		MintedAt:   mintedAt,
	}, nil
}

// GetToken returns one token by collection and id.
func (s *Store) GetToken(ctx context.Context, collection string, tokenID uint64) (storage.Token, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Token{}, err
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return storage.Token{}, fmt.Errorf("collection id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT collection, id, uri, holder, minted_at FROM tokens WHERE collection = ? AND id = ?`,
		collection, int64(tokenID),
	)
	var tok storage.Token
	var id int64
	var mintedAt int64
	if err := row.Scan(&tok.Collection, &id, &tok.URI, &tok.Holder, &mintedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Token{}, storage.ErrNotFound
		}
		return storage.Token{}, fmt.Errorf("get token: %w", err)
	}
	tok.ID = uint64(id)
	tok.MintedAt = fromMillis(mintedAt)
	return tok, nil
}

// TransferToken moves token custody after an authorization check.
func (s *Store) TransferToken(ctx context.Context, collection string, tokenID uint64, from, to, caller string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	collection = strings.TrimSpace(collection)
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	caller = strings.TrimSpace(caller)
	if collection == "" || from == "" || to == "" || caller == "" {
		return fmt.Errorf("collection, from, to, and caller are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := transferTokenTx(ctx, tx, collection, tokenID, from, to, caller); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// transferTokenTx enforces the custody rule inside an open transaction:
// the caller must be the current holder or an approved operator of it.
func transferTokenTx(ctx context.Context, tx *sql.Tx, collection string, tokenID uint64, from, to, caller string) error {
	var holder string
	err := tx.QueryRowContext(
		ctx,
		`SELECT holder FROM tokens WHERE collection = ? AND id = ?`,
		collection, int64(tokenID),
	).Scan(&holder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load token holder: %w", err)
	}
	if holder != from {
		return storage.ErrNotAuthorized
	}
	if caller != from {
		approved, err := isOperatorTx(ctx, tx, from, caller)
		if err != nil {
			return err
		}
		if !approved {
			return storage.ErrNotAuthorized
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE tokens SET holder = ? WHERE collection = ? AND id = ?`,
		to, collection, int64(tokenID),
	); err != nil {
		return fmt.Errorf("update token holder: %w", err)
	}
	return nil
}

// ApproveOperator grants operator blanket transfer rights for owner.
func (s *Store) ApproveOperator(ctx context.Context, owner, operator string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	owner = strings.TrimSpace(owner)
	operator = strings.TrimSpace(operator)
	if owner == "" || operator == "" {
		return fmt.Errorf("owner and operator are required")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO approvals (owner, operator, created_at) VALUES (?, ?, ?)`,
		owner, operator, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("approve operator: %w", err)
	}
	return nil
}

// IsOperator reports whether operator may move owner's tokens.
func (s *Store) IsOperator(ctx context.Context, owner, operator string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	return isOperatorQuery(ctx, s.sqlDB, owner, operator)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isOperatorQuery(ctx context.Context, q querier, owner, operator string) (bool, error) {
	var count int
	err := q.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM approvals WHERE owner = ? AND operator = ?`,
		owner, operator,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check operator approval: %w", err)
	}
	return count > 0, nil
}

func isOperatorTx(ctx context.Context, tx *sql.Tx, owner, operator string) (bool, error) {
	return isOperatorQuery(ctx, tx, owner, operator)
}

// Deposit credits amount to the account, creating it when absent.
func (s *Store) Deposit(ctx context.Context, account string, amount uint64) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return storage.Account{}, fmt.Errorf("account id is required")
	}

	var balance int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`INSERT INTO accounts (id, balance) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET balance = balance + excluded.balance
		 RETURNING balance`,
		account, int64(amount),
	).Scan(&balance)
	if err != nil {
		return storage.Account{}, fmt.Errorf("deposit: %w", err)
	}
	return storage.Account{ID: account, Balance: uint64(balance)}, nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, account string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return storage.Account{}, fmt.Errorf("account id is required")
	}

	var balance int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, account).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	return storage.Account{ID: account, Balance: uint64(balance)}, nil
}

// GetOffer returns one offer by id.
func (s *Store) GetOffer(ctx context.Context, offerID uint64) (storage.Offer, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Offer{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, collection, token_id, price, seller, sold, created_at, updated_at
		   FROM offers WHERE id = ?`,
		int64(offerID),
	)
	offer, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Offer{}, storage.ErrNotFound
		}
		return storage.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

// OfferCount returns the highest assigned offer id.
func (s *Store) OfferCount(ctx context.Context) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM offers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("offer count: %w", err)
	}
	return uint64(count), nil
}

// ListOffers returns one page of offers ordered by id.
func (s *Store) ListOffers(ctx context.Context, pageSize int, pageToken string) (storage.OfferPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.OfferPage{}, err
	}
	if pageSize <= 0 {
		return storage.OfferPage{}, fmt.Errorf("page size must be greater than zero")
	}
	afterID, err := parsePageToken(pageToken)
	if err != nil {
		return storage.OfferPage{}, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, collection, token_id, price, seller, sold, created_at, updated_at
		   FROM offers
		  WHERE id > ?
		  ORDER BY id ASC
		  LIMIT ?`,
		int64(afterID),
		pageSize+1,
	)
	if err != nil {
		return storage.OfferPage{}, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	page := storage.OfferPage{Offers: make([]storage.Offer, 0, pageSize)}
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return storage.OfferPage{}, fmt.Errorf("list offers: %w", err)
		}
		page.Offers = append(page.Offers, offer)
	}
	if err := rows.Err(); err != nil {
		return storage.OfferPage{}, fmt.Errorf("list offers: %w", err)
	}
	if len(page.Offers) > pageSize {
		page.NextPageToken = strconv.FormatUint(page.Offers[pageSize-1].ID, 10)
		page.Offers = page.Offers[:pageSize]
	}
	return page, nil
}

// CreateListedOffer records the offer, escrows the token, and appends evt.
func (s *Store) CreateListedOffer(ctx context.Context, offer storage.Offer, escrow string, evt event.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	escrow = strings.TrimSpace(escrow)
	if offer.ID == 0 {
		return fmt.Errorf("offer id must be assigned")
	}
	if offer.Price == 0 {
		return fmt.Errorf("offer price must be greater than zero")
	}
	if strings.TrimSpace(offer.Seller) == "" {
		return fmt.Errorf("offer seller is required")
	}
	if escrow == "" {
		return fmt.Errorf("escrow account is required")
	}
	if !evt.Validate() {
		return fmt.Errorf("offered event is incomplete")
	}
	createdAt := offer.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create offer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Escrow custody moves as the seller, relying on the approval the
	// seller granted to the escrow account before listing.
	if err := transferTokenTx(ctx, tx, offer.Collection, offer.TokenID, offer.Seller, escrow, offer.Seller); err != nil {
		return err
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO offers (id, collection, token_id, price, seller, sold, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		int64(offer.ID), offer.Collection, int64(offer.TokenID), int64(offer.Price),
		offer.Seller, toMillis(createdAt), toMillis(createdAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create offer: %w", err)
	}

	if err := appendEventTx(ctx, tx, evt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create offer: %w", err)
	}
	return nil
}

// SettlePurchase settles one offer: sold flag, custody, funds, and event
// move together in one transaction.
func (s *Store) SettlePurchase(ctx context.Context, offerID uint64, buyer string, paid uint64, feeRecipient, escrow string, evt event.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	buyer = strings.TrimSpace(buyer)
	feeRecipient = strings.TrimSpace(feeRecipient)
	escrow = strings.TrimSpace(escrow)
	if buyer == "" || feeRecipient == "" || escrow == "" {
		return fmt.Errorf("buyer, fee recipient, and escrow are required")
	}
	if !evt.Validate() {
		return fmt.Errorf("bought event is incomplete")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT id, collection, token_id, price, seller, sold, created_at, updated_at
		   FROM offers WHERE id = ?`,
		int64(offerID),
	)
	offer, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load offer: %w", err)
	}
	if offer.Sold {
		return storage.ErrAlreadySold
	}
	if paid < offer.Price {
		return fmt.Errorf("paid %d is below ask %d", paid, offer.Price)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE accounts SET balance = balance - ? WHERE id = ? AND balance >= ?`,
		int64(paid), buyer, int64(paid),
	)
	if err != nil {
		return fmt.Errorf("debit buyer: %w", err)
	}
	debited, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit buyer: %w", err)
	}
	if debited == 0 {
		return storage.ErrInsufficientFunds
	}

	if err := creditTx(ctx, tx, offer.Seller, offer.Price); err != nil {
		return fmt.Errorf("credit seller: %w", err)
	}
	if fee := paid - offer.Price; fee > 0 {
		if err := creditTx(ctx, tx, feeRecipient, fee); err != nil {
			return fmt.Errorf("credit fee recipient: %w", err)
		}
	}

	// The escrow account holds the token for every unsold offer; a
	// mismatch here is a corrupted ledger, not a user error.
	if err := transferTokenTx(ctx, tx, offer.Collection, offer.TokenID, escrow, buyer, escrow); err != nil {
		return fmt.Errorf("release escrow custody: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE offers SET sold = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().UnixMilli(), int64(offerID),
	); err != nil {
		return fmt.Errorf("mark offer sold: %w", err)
	}

	if err := appendEventTx(ctx, tx, evt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settle: %w", err)
	}
	return nil
}

func creditTx(ctx context.Context, tx *sql.Tx, account string, amount uint64) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO accounts (id, balance) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET balance = balance + excluded.balance`,
		account, int64(amount),
	)
	return err
}

func appendEventTx(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO events (id, type, at, offer_id, collection, token_id, price, seller, buyer)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, string(evt.Type), toMillis(evt.Timestamp), int64(evt.OfferID),
		evt.Collection, int64(evt.TokenID), int64(evt.Price), evt.Seller, evt.Buyer,
	); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns one page of the audit journal ordered by sequence.
func (s *Store) ListEvents(ctx context.Context, pageSize int, pageToken string) (storage.EventPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.EventPage{}, err
	}
	if pageSize <= 0 {
		return storage.EventPage{}, fmt.Errorf("page size must be greater than zero")
	}
	afterSeq, err := parsePageToken(pageToken)
	if err != nil {
		return storage.EventPage{}, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, id, type, at, offer_id, collection, token_id, price, seller, buyer
		   FROM events
		  WHERE seq > ?
		  ORDER BY seq ASC
		  LIMIT ?`,
		int64(afterSeq),
		pageSize+1,
	)
	if err != nil {
		return storage.EventPage{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	page := storage.EventPage{Events: make([]event.Event, 0, pageSize)}
	for rows.Next() {
		var evt event.Event
		var seq, at, offerID, tokenID, price int64
		var evtType string
		if err := rows.Scan(&seq, &evt.ID, &evtType, &at, &offerID, &evt.Collection, &tokenID, &price, &evt.Seller, &evt.Buyer); err != nil {
			return storage.EventPage{}, fmt.Errorf("list events: %w", err)
		}
		evt.Seq = uint64(seq)
		evt.Type = event.Type(evtType)
		evt.Timestamp = fromMillis(at)
		evt.OfferID = uint64(offerID)
		evt.TokenID = uint64(tokenID)
		evt.Price = uint64(price)
		page.Events = append(page.Events, evt)
	}
	if err := rows.Err(); err != nil {
		return storage.EventPage{}, fmt.Errorf("list events: %w", err)
	}
	if len(page.Events) > pageSize {
		page.NextPageToken = strconv.FormatUint(page.Events[pageSize-1].Seq, 10)
		page.Events = page.Events[:pageSize]
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (storage.Offer, error) {
	var offer storage.Offer
	var id, tokenID, price, createdAt, updatedAt int64
	var sold int
	if err := row.Scan(&id, &offer.Collection, &tokenID, &price, &offer.Seller, &sold, &createdAt, &updatedAt); err != nil {
		return storage.Offer{}, err
	}
	offer.ID = uint64(id)
	offer.TokenID = uint64(tokenID)
	offer.Price = uint64(price)
	offer.Sold = sold != 0
	offer.CreatedAt = fromMillis(createdAt)
	offer.UpdatedAt = fromMillis(updatedAt)
	return offer, nil
}

func parsePageToken(token string) (uint64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid page token %q", token)
	}
	return value, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed")
}

var _ storage.MarketStore = (*Store)(nil)
