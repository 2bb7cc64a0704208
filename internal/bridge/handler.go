package bridge

import (
	"net/http"
	"strconv"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(apperr.KindInvalidArgument)})
		return false
	}
	return true
}

func (h *Handler) RecordMint(c *gin.Context) {
	var req EventRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.service.RecordMint(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) RecordDeposit(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}
	var req UserEventRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.service.RecordDeposit(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) RecordWithdraw(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}
	var req UserEventRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.service.RecordWithdraw(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) GetMintLimit(c *gin.Context) {
	limit, err := h.service.GetDailyMintLimit(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, limit)
}

func (h *Handler) ListDeposits(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	events, err := h.service.ListDeposits(c.Request.Context(), id, limit, offset)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": events, "count": len(events)})
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	events, err := h.service.ListWithdrawals(c.Request.Context(), id, limit, offset)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": events, "count": len(events)})
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

// RegisterPublicRoutes registers the unauthenticated bridge routes
func (h *Handler) RegisterPublicRoutes(router *gin.RouterGroup) {
	router.GET("/bridge/mint/limit/:wallet", h.GetMintLimit)
}

// RegisterRoutes registers the bridge routes; router must require auth.
// Mutating routes run behind the given middleware (rate limiting).
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, mutating ...gin.HandlerFunc) {
	bridge := router.Group("/bridge")
	{
		bridge.GET("/deposits", h.ListDeposits)
		bridge.GET("/withdrawals", h.ListWithdrawals)

		writes := bridge.Group("", mutating...)
		writes.POST("/mint", h.RecordMint)
		writes.POST("/deposit", h.RecordDeposit)
		writes.POST("/withdraw", h.RecordWithdraw)
	}
}
