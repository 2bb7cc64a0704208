package balance

import (
	"net/http"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/gin-gonic/gin"
)

// Handler serves the caller's balance
type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// LinkWalletRequest proves ownership of a wallet
type LinkWalletRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

func (h *Handler) GetBalance(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}

	b, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) LinkWallet(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}

	var req LinkWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(apperr.KindInvalidArgument)})
		return
	}

	b, err := h.ledger.LinkWalletWithSignature(c.Request.Context(), id, req.Wallet, req.Signature)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// RegisterRoutes registers balance routes; router must require auth
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/balance", h.GetBalance)
	router.POST("/balance/wallet", h.LinkWallet)
}
