package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mintbay/mintbay/internal/market/event"
	"github.com/mintbay/mintbay/internal/market/storage"
)

const escrowAccount = "market-escrow"

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func seedCollection(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.CreateCollection(context.Background(), storage.Collection{
		ID:     id,
		Name:   "Dapp NFT",
		Symbol: "DAPP",
	})
	if err != nil {
		t.Fatalf("seed collection: %v", err)
	}
}

func mintTo(t *testing.T, store *Store, collection, holder string) storage.Token {
	t.Helper()
	tok, err := store.MintToken(context.Background(), collection, "ipfs://sample", holder, time.Now().UTC())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return tok
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestCreateGetCollectionRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")

	got, err := store.GetCollection(context.Background(), "col-1")
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if got.Name != "Dapp NFT" || got.Symbol != "DAPP" {
		t.Fatalf("collection = %+v, want Dapp NFT/DAPP", got)
	}

	err = store.CreateCollection(context.Background(), storage.Collection{ID: "col-1", Name: "Other", Symbol: "OTH"})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate create error = %v, want %v", err, storage.ErrAlreadyExists)
	}

	if _, err := store.GetCollection(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing collection error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestMintTokenAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")

	first := mintTo(t, store, "col-1", "alice")
	second := mintTo(t, store, "col-1", "bob")
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("token ids = %d, %d, want 1, 2", first.ID, second.ID)
	}

	got, err := store.GetToken(context.Background(), "col-1", 1)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got.Holder != "alice" || got.URI != "ipfs://sample" {
		t.Fatalf("token = %+v", got)
	}

	if _, err := store.MintToken(context.Background(), "missing", "uri", "alice", time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("mint into missing collection error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestTransferTokenAuthorization(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")
	mintTo(t, store, "col-1", "alice")

	// A stranger cannot move alice's token.
	err := store.TransferToken(context.Background(), "col-1", 1, "alice", "mallory", "mallory")
	if !errors.Is(err, storage.ErrNotAuthorized) {
		t.Fatalf("stranger transfer error = %v, want %v", err, storage.ErrNotAuthorized)
	}

	// The holder can.
	if err := store.TransferToken(context.Background(), "col-1", 1, "alice", "bob", "alice"); err != nil {
		t.Fatalf("holder transfer: %v", err)
	}

	// An approved operator can.
	if err := store.ApproveOperator(context.Background(), "bob", "carol"); err != nil {
		t.Fatalf("approve operator: %v", err)
	}
	if err := store.TransferToken(context.Background(), "col-1", 1, "bob", "dave", "carol"); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}

	got, err := store.GetToken(context.Background(), "col-1", 1)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got.Holder != "dave" {
		t.Fatalf("holder = %q, want %q", got.Holder, "dave")
	}

	// from must match the current holder.
	err = store.TransferToken(context.Background(), "col-1", 1, "alice", "bob", "alice")
	if !errors.Is(err, storage.ErrNotAuthorized) {
		t.Fatalf("stale-from transfer error = %v, want %v", err, storage.ErrNotAuthorized)
	}
}

func TestApproveOperatorIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	for i := 0; i < 2; i++ {
		if err := store.ApproveOperator(context.Background(), "alice", escrowAccount); err != nil {
			t.Fatalf("approve operator: %v", err)
		}
	}
	approved, err := store.IsOperator(context.Background(), "alice", escrowAccount)
	if err != nil {
		t.Fatalf("is operator: %v", err)
	}
	if !approved {
		t.Fatal("expected approval to be recorded")
	}
}

func TestDepositAccumulates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.Deposit(context.Background(), "alice", 100); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	acct, err := store.Deposit(context.Background(), "alice", 50)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if acct.Balance != 150 {
		t.Fatalf("balance = %d, want 150", acct.Balance)
	}

	if _, err := store.GetAccount(context.Background(), "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing account error = %v, want %v", err, storage.ErrNotFound)
	}
}

func listOffer(t *testing.T, store *Store, offerID uint64, seller string, price uint64) storage.Offer {
	t.Helper()
	now := time.Now().UTC()
	offer := storage.Offer{
		ID:         offerID,
		Collection: "col-1",
		TokenID:    1,
		Price:      price,
		Seller:     seller,
		CreatedAt:  now,
	}
	evt := event.NewOffered(now, offerID, "col-1", 1, price, seller)
	if err := store.CreateListedOffer(context.Background(), offer, escrowAccount, evt); err != nil {
		t.Fatalf("create listed offer: %v", err)
	}
	return offer
}

func TestCreateListedOfferEscrowsTokenAndAppendsEvent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")
	mintTo(t, store, "col-1", "alice")
	listOffer(t, store, 1, "alice", 200000000)

	tok, err := store.GetToken(context.Background(), "col-1", 1)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if tok.Holder != escrowAccount {
		t.Fatalf("holder = %q, want escrow %q", tok.Holder, escrowAccount)
	}

	offer, err := store.GetOffer(context.Background(), 1)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if offer.Sold {
		t.Fatal("fresh offer should be unsold")
	}

	page, err := store.ListEvents(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(page.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(page.Events))
	}
	if page.Events[0].Type != event.TypeOffered || page.Events[0].Seq != 1 {
		t.Fatalf("event = %+v", page.Events[0])
	}
}

func TestCreateListedOfferFailsWithoutSellerCustody(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")
	mintTo(t, store, "col-1", "alice")

	now := time.Now().UTC()
	offer := storage.Offer{ID: 1, Collection: "col-1", TokenID: 1, Price: 10, Seller: "bob", CreatedAt: now}
	evt := event.NewOffered(now, 1, "col-1", 1, 10, "bob")
	err := store.CreateListedOffer(context.Background(), offer, escrowAccount, evt)
	if !errors.Is(err, storage.ErrNotAuthorized) {
		t.Fatalf("error = %v, want %v", err, storage.ErrNotAuthorized)
	}

	// Nothing committed: no offer row, no event, custody unchanged.
	if _, err := store.GetOffer(context.Background(), 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("offer should not exist, got %v", err)
	}
	page, err := store.ListEvents(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(page.Events) != 0 {
		t.Fatalf("events = %d, want 0", len(page.Events))
	}
}

func TestSettlePurchaseMovesEverythingAtomically(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")
	mintTo(t, store, "col-1", "alice")
	listOffer(t, store, 1, "alice", 200000000)

	if _, err := store.Deposit(context.Background(), "bob", 300000000); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	evt := event.NewBought(time.Now().UTC(), 1, "col-1", 1, 200000000, "alice", "bob")
	if err := store.SettlePurchase(context.Background(), 1, "bob", 202000000, "fee-account", escrowAccount, evt); err != nil {
		t.Fatalf("settle purchase: %v", err)
	}

	offer, err := store.GetOffer(context.Background(), 1)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if !offer.Sold {
		t.Fatal("offer should be sold")
	}

	tok, err := store.GetToken(context.Background(), "col-1", 1)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if tok.Holder != "bob" {
		t.Fatalf("holder = %q, want buyer", tok.Holder)
	}

	checks := []struct {
		account string
		want    uint64
	}{
		{"bob", 98000000},
		{"alice", 200000000},
		{"fee-account", 2000000},
	}
	for _, tc := range checks {
		acct, err := store.GetAccount(context.Background(), tc.account)
		if err != nil {
			t.Fatalf("get account %s: %v", tc.account, err)
		}
		if acct.Balance != tc.want {
			t.Fatalf("%s balance = %d, want %d", tc.account, acct.Balance, tc.want)
		}
	}

	page, err := store.ListEvents(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(page.Events) != 2 || page.Events[1].Type != event.TypeBought {
		t.Fatalf("events = %+v", page.Events)
	}

	// Settling twice fails and changes nothing.
	evt2 := event.NewBought(time.Now().UTC(), 1, "col-1", 1, 200000000, "alice", "carol")
	err = store.SettlePurchase(context.Background(), 1, "carol", 202000000, "fee-account", escrowAccount, evt2)
	if !errors.Is(err, storage.ErrAlreadySold) {
		t.Fatalf("resale error = %v, want %v", err, storage.ErrAlreadySold)
	}
}

func TestSettlePurchaseRejectsUnderfundedBuyer(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")
	mintTo(t, store, "col-1", "alice")
	listOffer(t, store, 1, "alice", 200000000)

	if _, err := store.Deposit(context.Background(), "bob", 1000); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	evt := event.NewBought(time.Now().UTC(), 1, "col-1", 1, 200000000, "alice", "bob")
	err := store.SettlePurchase(context.Background(), 1, "bob", 202000000, "fee-account", escrowAccount, evt)
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want %v", err, storage.ErrInsufficientFunds)
	}

	// Full rollback: offer unsold, custody in escrow, buyer balance intact.
	offer, err := store.GetOffer(context.Background(), 1)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if offer.Sold {
		t.Fatal("offer should stay unsold")
	}
	acct, err := store.GetAccount(context.Background(), "bob")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct.Balance != 1000 {
		t.Fatalf("buyer balance = %d, want 1000", acct.Balance)
	}
}

func TestSettlePurchaseMissingOffer(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")

	evt := event.NewBought(time.Now().UTC(), 9, "col-1", 1, 10, "alice", "bob")
	err := store.SettlePurchase(context.Background(), 9, "bob", 20, "fee-account", escrowAccount, evt)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestListOffersPaginates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")
	for i := uint64(1); i <= 3; i++ {
		mintTo(t, store, "col-1", "alice")
		now := time.Now().UTC()
		offer := storage.Offer{ID: i, Collection: "col-1", TokenID: i, Price: 100, Seller: "alice", CreatedAt: now}
		evt := event.NewOffered(now, i, "col-1", i, 100, "alice")
		if err := store.CreateListedOffer(context.Background(), offer, escrowAccount, evt); err != nil {
			t.Fatalf("create offer %d: %v", i, err)
		}
	}

	pageOne, err := store.ListOffers(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("list page one: %v", err)
	}
	if len(pageOne.Offers) != 2 || pageOne.NextPageToken == "" {
		t.Fatalf("page one = %+v", pageOne)
	}

	pageTwo, err := store.ListOffers(context.Background(), 2, pageOne.NextPageToken)
	if err != nil {
		t.Fatalf("list page two: %v", err)
	}
	if len(pageTwo.Offers) != 1 || pageTwo.NextPageToken != "" {
		t.Fatalf("page two = %+v", pageTwo)
	}
	if pageTwo.Offers[0].ID != 3 {
		t.Fatalf("page two offer id = %d, want 3", pageTwo.Offers[0].ID)
	}

	if _, err := store.ListOffers(context.Background(), 2, "garbage"); err == nil {
		t.Fatal("expected invalid page token error")
	}
}

func TestOfferCountTracksHighestID(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedCollection(t, store, "col-1")

	count, err := store.OfferCount(context.Background())
	if err != nil {
		t.Fatalf("offer count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}

	mintTo(t, store, "col-1", "alice")
	listOffer(t, store, 1, "alice", 100)

	count, err = store.OfferCount(context.Background())
	if err != nil {
		t.Fatalf("offer count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
