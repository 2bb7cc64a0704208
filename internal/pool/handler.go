package pool

import (
	"context"
	"net/http"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// FlowRequest is the body of a deposit or withdrawal
type FlowRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) GetPool(c *gin.Context) {
	info, err := h.service.GetPoolInfo(c.Request.Context(), c.Param("market"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) GetUserPositions(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}

	positions, err := h.service.GetUserPositions(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (h *Handler) Deposit(c *gin.Context) {
	h.flow(c, h.service.Deposit)
}

func (h *Handler) Withdraw(c *gin.Context) {
	h.flow(c, h.service.Withdraw)
}

func (h *Handler) flow(c *gin.Context, op func(ctx context.Context, id auth.Identity, market string, amount decimal.Decimal) (*FlowResult, error)) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}

	var req FlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(apperr.KindInvalidArgument)})
		return
	}

	result, err := op(c.Request.Context(), id, c.Param("market"), req.Amount)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterPublicRoutes registers the unauthenticated pool routes
func (h *Handler) RegisterPublicRoutes(router *gin.RouterGroup) {
	router.GET("/pools/:market", h.GetPool)
}

// RegisterRoutes registers the LP routes; router must require auth
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	pools := router.Group("/pools")
	{
		pools.GET("/positions", h.GetUserPositions)
		pools.POST("/:market/deposit", h.Deposit)
		pools.POST("/:market/withdraw", h.Withdraw)
	}
}
