package httpapi

import "github.com/gin-gonic/gin"

// Register wires every marketplace route onto the engine. Reads are
// public; writes sit behind RequireAuth.
func Register(engine *gin.Engine, h *Handler, auth *Auth) {
	engine.GET("/healthz", h.Health)

	api := engine.Group("/api")
	authed := api.Group("", RequireAuth(auth))

	authed.POST("/collections", h.CreateCollection)
	api.GET("/collections/:id", h.GetCollection)
	authed.POST("/collections/:id/tokens", h.MintToken)
	api.GET("/collections/:id/tokens/:token_id", h.GetToken)
	authed.POST("/collections/:id/tokens/:token_id/transfer", h.TransferToken)

	authed.POST("/approvals", h.ApproveOperator)

	authed.POST("/accounts/deposit", h.Deposit)
	api.GET("/accounts/:id", h.GetAccount)

	authed.POST("/offers", h.CreateOffer)
	api.GET("/offers", h.ListOffers)
	api.GET("/offers/:id", h.GetOffer)
	api.GET("/offers/:id/total-price", h.TotalPrice)
	authed.POST("/offers/:id/purchase", h.Purchase)

	api.GET("/events", h.ListEvents)
}
