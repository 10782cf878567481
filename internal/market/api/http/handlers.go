package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperr "github.com/mintbay/mintbay/internal/errors"
	"github.com/mintbay/mintbay/internal/market/currency"
	"github.com/mintbay/mintbay/internal/market/event"
	"github.com/mintbay/mintbay/internal/market/ledger"
	"github.com/mintbay/mintbay/internal/market/storage"
)

// Handler serves the marketplace HTTP API.
type Handler struct {
	ledger *ledger.Ledger
	store  storage.MarketStore
	clock  func() time.Time
}

// NewHandler builds a Handler over the offer ledger and its store.
func NewHandler(l *ledger.Ledger, store storage.MarketStore) *Handler {
	return &Handler{ledger: l, store: store, clock: time.Now}
}

type collectionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	CollectionID string    `json:"collection_id"`
	TokenID      uint64    `json:"token_id"`
	TokenURI     string    `json:"token_uri"`
	Holder       string    `json:"holder"`
	MintedAt     time.Time `json:"minted_at"`
}

type accountResponse struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

type offerResponse struct {
	ID           uint64    `json:"id"`
	CollectionID string    `json:"collection_id"`
	TokenID      uint64    `json:"token_id"`
	Price        string    `json:"price"`
	Seller       string    `json:"seller"`
	Sold         bool      `json:"sold"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type eventResponse struct {
	ID           string    `json:"id"`
	Seq          uint64    `json:"seq"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	OfferID      uint64    `json:"offer_id"`
	CollectionID string    `json:"collection_id"`
	TokenID      uint64    `json:"token_id"`
	Price        string    `json:"price"`
	Seller       string    `json:"seller"`
	Buyer        string    `json:"buyer,omitempty"`
}

func toCollectionResponse(col storage.Collection) collectionResponse {
	return collectionResponse{ID: col.ID, Name: col.Name, Symbol: col.Symbol, CreatedAt: col.CreatedAt}
}

func toTokenResponse(tok storage.Token) tokenResponse {
	return tokenResponse{
		CollectionID: tok.Collection,
		TokenID:      tok.ID,
		TokenURI:     tok.URI,
		Holder:       tok.Holder,
		MintedAt:     tok.MintedAt,
	}
}

func toOfferResponse(offer storage.Offer) offerResponse {
	return offerResponse{
		ID:           offer.ID,
		CollectionID: offer.Collection,
		TokenID:      offer.TokenID,
		Price:        currency.Format(offer.Price),
		Seller:       offer.Seller,
		Sold:         offer.Sold,
		CreatedAt:    offer.CreatedAt,
		UpdatedAt:    offer.UpdatedAt,
	}
}

func toEventResponse(evt event.Event) eventResponse {
	return eventResponse{
		ID:           evt.ID,
		Seq:          evt.Seq,
		Type:         string(evt.Type),
		Timestamp:    evt.Timestamp,
		OfferID:      evt.OfferID,
		CollectionID: evt.Collection,
		TokenID:      evt.TokenID,
		Price:        currency.Format(evt.Price),
		Seller:       evt.Seller,
		Buyer:        evt.Buyer,
	}
}

// renderError writes one error shape for every failure in the API.
func renderError(c *gin.Context, err error) {
	code := apperr.GetCode(err)
	status := code.HTTPStatus()
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Keep storage details out of responses.
		message = "internal error"
	}
	body := gin.H{"error": message, "code": code}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) && len(domainErr.Metadata) > 0 {
		body["metadata"] = domainErr.Metadata
	}
	c.JSON(status, body)
}

// CreateCollection handles POST /api/collections.
func (h *Handler) CreateCollection(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid request body", err))
		return
	}
	if req.Name == "" {
		renderError(c, apperr.New(apperr.CodeCollectionNameEmpty, "collection name is required"))
		return
	}

	col := storage.Collection{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Symbol:    req.Symbol,
		CreatedAt: h.clock().UTC(),
	}
	if err := h.store.CreateCollection(c.Request.Context(), col); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"collection": toCollectionResponse(col)})
}

// GetCollection handles GET /api/collections/:id.
func (h *Handler) GetCollection(c *gin.Context) {
	col, err := h.store.GetCollection(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperr.Wrap(apperr.CodeCollectionNotFound, "collection doesn't exist", err)
		}
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": toCollectionResponse(col)})
}

// MintToken handles POST /api/collections/:id/tokens. The new token is
// held by the caller.
func (h *Handler) MintToken(c *gin.Context) {
	var req struct {
		TokenURI string `json:"token_uri"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid request body", err))
		return
	}

	collection := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.store.GetCollection(ctx, collection); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperr.Wrap(apperr.CodeCollectionNotFound, "collection doesn't exist", err)
		}
		renderError(c, err)
		return
	}

	tok, err := h.store.MintToken(ctx, collection, req.TokenURI, Caller(c), h.clock().UTC())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": toTokenResponse(tok)})
}

// GetToken handles GET /api/collections/:id/tokens/:token_id.
func (h *Handler) GetToken(c *gin.Context) {
	tokenID, err := parseID(c.Param("token_id"))
	if err != nil {
		renderError(c, err)
		return
	}
	tok, err := h.store.GetToken(c.Request.Context(), c.Param("id"), tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperr.Wrap(apperr.CodeAssetNotFound, "token doesn't exist", err)
		}
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": toTokenResponse(tok)})
}

// TransferToken handles POST /api/collections/:id/tokens/:token_id/transfer.
// The caller must be the holder or an approved operator of the holder.
func (h *Handler) TransferToken(c *gin.Context) {
	var req struct {
		To string `json:"to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.To == "" {
		renderError(c, apperr.New(apperr.CodeInvalidArgument, "transfer recipient is required"))
		return
	}
	tokenID, err := parseID(c.Param("token_id"))
	if err != nil {
		renderError(c, err)
		return
	}

	collection := c.Param("id")
	ctx := c.Request.Context()
	tok, err := h.store.GetToken(ctx, collection, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperr.Wrap(apperr.CodeAssetNotFound, "token doesn't exist", err)
		}
		renderError(c, err)
		return
	}

	if err := h.store.TransferToken(ctx, collection, tokenID, tok.Holder, req.To, Caller(c)); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotAuthorized):
			err = apperr.Wrap(apperr.CodeAssetTransferNotApproved, "caller may not move this token", err)
		case errors.Is(err, storage.ErrNotFound):
			err = apperr.Wrap(apperr.CodeAssetNotFound, "token doesn't exist", err)
		}
		renderError(c, err)
		return
	}

	tok.Holder = req.To
	c.JSON(http.StatusOK, gin.H{"token": toTokenResponse(tok)})
}

// ApproveOperator handles POST /api/approvals. The caller grants the
// operator blanket transfer rights over every token the caller holds.
func (h *Handler) ApproveOperator(c *gin.Context) {
	var req struct {
		Operator string `json:"operator"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Operator == "" {
		renderError(c, apperr.New(apperr.CodeInvalidArgument, "operator is required"))
		return
	}

	if err := h.store.ApproveOperator(c.Request.Context(), Caller(c), req.Operator); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": Caller(c), "operator": req.Operator})
}

// Deposit handles POST /api/accounts/deposit. Amounts are decimal
// strings; the account is created on first deposit.
func (h *Handler) Deposit(c *gin.Context) {
	var req struct {
		Amount string `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid request body", err))
		return
	}
	amount, err := currency.Parse(req.Amount)
	if err != nil {
		renderError(c, err)
		return
	}
	if amount == 0 {
		renderError(c, apperr.New(apperr.CodeAmountInvalid, "deposit amount must be greater than zero"))
		return
	}

	acct, err := h.store.Deposit(c.Request.Context(), Caller(c), amount)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": accountResponse{ID: acct.ID, Balance: currency.Format(acct.Balance)}})
}

// GetAccount handles GET /api/accounts/:id.
func (h *Handler) GetAccount(c *gin.Context) {
	acct, err := h.store.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperr.Wrap(apperr.CodeAccountNotFound, "account doesn't exist", err)
		}
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": accountResponse{ID: acct.ID, Balance: currency.Format(acct.Balance)}})
}

// CreateOffer handles POST /api/offers. The caller lists a token they
// hold; the token moves into escrow custody until it sells.
func (h *Handler) CreateOffer(c *gin.Context) {
	var req struct {
		CollectionID string `json:"collection_id"`
		TokenID      uint64 `json:"token_id"`
		Price        string `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid request body", err))
		return
	}
	price, err := currency.Parse(req.Price)
	if err != nil {
		renderError(c, err)
		return
	}

	offer, err := h.ledger.List(c.Request.Context(), req.CollectionID, req.TokenID, price, Caller(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"offer": toOfferResponse(offer)})
}

// ListOffers handles GET /api/offers.
func (h *Handler) ListOffers(c *gin.Context) {
	pageSize, err := parsePageSize(c.DefaultQuery("page_size", "50"))
	if err != nil {
		renderError(c, err)
		return
	}

	page, err := h.store.ListOffers(c.Request.Context(), pageSize, c.Query("page_token"))
	if err != nil {
		renderError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid page request", err))
		return
	}
	offers := make([]offerResponse, 0, len(page.Offers))
	for _, offer := range page.Offers {
		offers = append(offers, toOfferResponse(offer))
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers, "next_page_token": page.NextPageToken})
}

// GetOffer handles GET /api/offers/:id.
func (h *Handler) GetOffer(c *gin.Context) {
	offerID, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	offer, err := h.ledger.GetOffer(c.Request.Context(), offerID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": toOfferResponse(offer)})
}

// TotalPrice handles GET /api/offers/:id/total-price: the amount a
// buyer must pay, ask plus market fee.
func (h *Handler) TotalPrice(c *gin.Context) {
	offerID, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	total, err := h.ledger.TotalPrice(c.Request.Context(), offerID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer_id": offerID, "total_price": currency.Format(total)})
}

// Purchase handles POST /api/offers/:id/purchase.
func (h *Handler) Purchase(c *gin.Context) {
	var req struct {
		PaidAmount string `json:"paid_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid request body", err))
		return
	}
	paid, err := currency.Parse(req.PaidAmount)
	if err != nil {
		renderError(c, err)
		return
	}
	offerID, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	offer, err := h.ledger.Purchase(c.Request.Context(), offerID, paid, Caller(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": toOfferResponse(offer)})
}

// ListEvents handles GET /api/events, paging through the audit journal
// in append order.
func (h *Handler) ListEvents(c *gin.Context) {
	pageSize, err := parsePageSize(c.DefaultQuery("page_size", "50"))
	if err != nil {
		renderError(c, err)
		return
	}

	page, err := h.store.ListEvents(c.Request.Context(), pageSize, c.Query("page_token"))
	if err != nil {
		renderError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid page request", err))
		return
	}
	events := make([]eventResponse, 0, len(page.Events))
	for _, evt := range page.Events {
		events = append(events, toEventResponse(evt))
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "next_page_token": page.NextPageToken})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeInvalidArgument, "id must be a positive integer", err)
	}
	return id, nil
}

func parsePageSize(raw string) (int, error) {
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, apperr.New(apperr.CodeInvalidArgument, "page_size must be a positive integer")
	}
	if size > 500 {
		size = 500
	}
	return size, nil
}
