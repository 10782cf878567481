package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mintbay/mintbay/internal/market/ledger"
	"github.com/mintbay/mintbay/internal/market/storage/memory"
)

type testServer struct {
	engine *gin.Engine
	store  *memory.Store
	auth   *Auth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	l, err := ledger.New(store, ledger.Config{
		FeePercent:   1,
		FeeRecipient: "fee-account",
		Escrow:       "market-escrow",
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	auth := NewAuth([]byte("test-secret"), time.Hour)
	engine := gin.New()
	Register(engine, NewHandler(l, store), auth)
	return &testServer{engine: engine, store: store, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, account string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		token, err := s.auth.IssueToken(account)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// createCollection provisions a collection and returns its id.
func (s *testServer) createCollection(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/collections", "admin", gin.H{"name": "Dapp NFT", "symbol": "DAPP"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create collection status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Collection collectionResponse `json:"collection"`
	}
	decode(t, rec, &resp)
	return resp.Collection.ID
}

// listToken mints one token for seller, approves the escrow operator,
// and lists it at the given decimal price. Returns the offer.
func (s *testServer) listToken(t *testing.T, colID, seller, price string) offerResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/collections/"+colID+"/tokens", seller, gin.H{"token_uri": "ipfs://sample"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint status = %d body %s", rec.Code, rec.Body.String())
	}
	var minted struct {
		Token tokenResponse `json:"token"`
	}
	decode(t, rec, &minted)

	rec = s.do(t, http.MethodPost, "/api/approvals", seller, gin.H{"operator": "market-escrow"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/offers", seller, gin.H{
		"collection_id": colID,
		"token_id":      minted.Token.TokenID,
		"price":         price,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("list status = %d body %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Offer offerResponse `json:"offer"`
	}
	decode(t, rec, &listed)
	return listed.Offer
}

func (s *testServer) deposit(t *testing.T, account, amount string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/accounts/deposit", account, gin.H{"amount": amount})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestWritesRequireToken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/collections", "", gin.H{"name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/collections", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Token abc")
	rec2 := httptest.NewRecorder()
	s.engine.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("malformed header status = %d, want 401", rec2.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCollectionLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	colID := s.createCollection(t)

	rec := s.do(t, http.MethodGet, "/api/collections/"+colID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var resp struct {
		Collection collectionResponse `json:"collection"`
	}
	decode(t, rec, &resp)
	if resp.Collection.Name != "Dapp NFT" || resp.Collection.Symbol != "DAPP" {
		t.Fatalf("collection = %+v", resp.Collection)
	}

	rec = s.do(t, http.MethodGet, "/api/collections/no-such-id", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing collection status = %d, want 404", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/collections", "admin", gin.H{"symbol": "X"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty name status = %d, want 400", rec.Code)
	}
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	colID := s.createCollection(t)

	for want := uint64(1); want <= 3; want++ {
		rec := s.do(t, http.MethodPost, "/api/collections/"+colID+"/tokens", "alice", gin.H{"token_uri": "ipfs://x"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("mint status = %d", rec.Code)
		}
		var resp struct {
			Token tokenResponse `json:"token"`
		}
		decode(t, rec, &resp)
		if resp.Token.TokenID != want || resp.Token.Holder != "alice" {
			t.Fatalf("token = %+v, want id %d held by alice", resp.Token, want)
		}
	}

	rec := s.do(t, http.MethodPost, "/api/collections/no-such-id/tokens", "alice", gin.H{"token_uri": "ipfs://x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("mint into missing collection status = %d, want 404", rec.Code)
	}
}

func TestTransferAuthorization(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	colID := s.createCollection(t)
	rec := s.do(t, http.MethodPost, "/api/collections/"+colID+"/tokens", "alice", gin.H{"token_uri": "ipfs://x"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint status = %d", rec.Code)
	}

	path := "/api/collections/" + colID + "/tokens/1/transfer"

	rec = s.do(t, http.MethodPost, path, "mallory", gin.H{"to": "mallory"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger transfer status = %d, want 403", rec.Code)
	}

	rec = s.do(t, http.MethodPost, path, "alice", gin.H{"to": "bob"})
	if rec.Code != http.StatusOK {
		t.Fatalf("holder transfer status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token tokenResponse `json:"token"`
	}
	decode(t, rec, &resp)
	if resp.Token.Holder != "bob" {
		t.Fatalf("holder = %q, want bob", resp.Token.Holder)
	}
}

func TestDepositAndGetAccount(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.deposit(t, "bob", "1.5")
	s.deposit(t, "bob", "0.5")

	rec := s.do(t, http.MethodGet, "/api/accounts/bob", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account status = %d", rec.Code)
	}
	var resp struct {
		Account accountResponse `json:"account"`
	}
	decode(t, rec, &resp)
	if resp.Account.Balance != "2" {
		t.Fatalf("balance = %q, want 2", resp.Account.Balance)
	}

	rec = s.do(t, http.MethodGet, "/api/accounts/nobody", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing account status = %d, want 404", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/accounts/deposit", "bob", gin.H{"amount": "-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative deposit status = %d, want 400", rec.Code)
	}
}

func TestOfferLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	colID := s.createCollection(t)
	offer := s.listToken(t, colID, "alice", "2.0")
	if offer.ID != 1 || offer.Price != "2" || offer.Sold {
		t.Fatalf("offer = %+v", offer)
	}

	// Escrow holds the token while the offer is open.
	rec := s.do(t, http.MethodGet, "/api/collections/"+colID+"/tokens/1", "", nil)
	var tokResp struct {
		Token tokenResponse `json:"token"`
	}
	decode(t, rec, &tokResp)
	if tokResp.Token.Holder != "market-escrow" {
		t.Fatalf("holder = %q, want market-escrow", tokResp.Token.Holder)
	}

	rec = s.do(t, http.MethodGet, "/api/offers/1/total-price", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("total price status = %d", rec.Code)
	}
	var totalResp struct {
		TotalPrice string `json:"total_price"`
	}
	decode(t, rec, &totalResp)
	if totalResp.TotalPrice != "2.02" {
		t.Fatalf("total price = %q, want 2.02", totalResp.TotalPrice)
	}

	s.deposit(t, "bob", "3.0")

	rec = s.do(t, http.MethodPost, "/api/offers/1/purchase", "bob", gin.H{"paid_amount": "2.0"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("short payment status = %d, want 402", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/offers/1/purchase", "bob", gin.H{"paid_amount": "2.02"})
	if rec.Code != http.StatusOK {
		t.Fatalf("purchase status = %d body %s", rec.Code, rec.Body.String())
	}
	var bought struct {
		Offer offerResponse `json:"offer"`
	}
	decode(t, rec, &bought)
	if !bought.Offer.Sold {
		t.Fatal("offer should be sold")
	}

	// The ask lands with the seller, the fee with the fee recipient.
	for account, want := range map[string]string{
		"alice":       "2",
		"fee-account": "0.02",
		"bob":         "0.98",
	} {
		rec = s.do(t, http.MethodGet, "/api/accounts/"+account, "", nil)
		var acct struct {
			Account accountResponse `json:"account"`
		}
		decode(t, rec, &acct)
		if acct.Account.Balance != want {
			t.Fatalf("%s balance = %q, want %q", account, acct.Account.Balance, want)
		}
	}

	rec = s.do(t, http.MethodPost, "/api/offers/1/purchase", "bob", gin.H{"paid_amount": "2.02"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("resale status = %d, want 409", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/offers/2/total-price", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing offer status = %d, want 404", rec.Code)
	}
}

func TestListOffersAndEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	colID := s.createCollection(t)
	for i := 0; i < 3; i++ {
		s.listToken(t, colID, "alice", "1.0")
	}

	rec := s.do(t, http.MethodGet, "/api/offers?page_size=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list offers status = %d", rec.Code)
	}
	var offers struct {
		Offers        []offerResponse `json:"offers"`
		NextPageToken string          `json:"next_page_token"`
	}
	decode(t, rec, &offers)
	if len(offers.Offers) != 2 || offers.NextPageToken == "" {
		t.Fatalf("page = %+v", offers)
	}

	rec = s.do(t, http.MethodGet, "/api/offers?page_size=2&page_token="+offers.NextPageToken, "", nil)
	decode(t, rec, &offers)
	if len(offers.Offers) != 1 || offers.NextPageToken != "" {
		t.Fatalf("last page = %+v", offers)
	}

	rec = s.do(t, http.MethodGet, "/api/events", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list events status = %d", rec.Code)
	}
	var events struct {
		Events []eventResponse `json:"events"`
	}
	decode(t, rec, &events)
	if len(events.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(events.Events))
	}
	for i, evt := range events.Events {
		if evt.Seq != uint64(i)+1 || evt.Type != "market.offered" {
			t.Fatalf("event %d = %+v", i, evt)
		}
	}

	rec = s.do(t, http.MethodGet, "/api/offers?page_size=nope", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad page size status = %d, want 400", rec.Code)
	}
}

func TestOfferValidationOverHTTP(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	colID := s.createCollection(t)
	rec := s.do(t, http.MethodPost, "/api/collections/"+colID+"/tokens", "alice", gin.H{"token_uri": "ipfs://x"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint status = %d", rec.Code)
	}

	tests := []struct {
		name   string
		caller string
		body   gin.H
		status int
	}{
		{
			name:   "zero price",
			caller: "alice",
			body:   gin.H{"collection_id": colID, "token_id": 1, "price": "0"},
			status: http.StatusBadRequest,
		},
		{
			name:   "not the holder",
			caller: "mallory",
			body:   gin.H{"collection_id": colID, "token_id": 1, "price": "1.0"},
			status: http.StatusForbidden,
		},
		{
			name:   "escrow not approved",
			caller: "alice",
			body:   gin.H{"collection_id": colID, "token_id": 1, "price": "1.0"},
			status: http.StatusForbidden,
		},
		{
			name:   "unknown token",
			caller: "alice",
			body:   gin.H{"collection_id": colID, "token_id": 99, "price": "1.0"},
			status: http.StatusNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/offers", tc.caller, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}
