package position

import (
	"net/http"
	"strconv"

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

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": string(apperr.KindInvalidArgument)})
}

func positionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid position id")
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) ListPositions(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}

	openOnly, _ := strconv.ParseBool(c.DefaultQuery("open", "false"))
	positions, err := h.service.ListPositions(c.Request.Context(), id, openOnly)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (h *Handler) OpenPosition(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}

	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.service.OpenPosition(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ClosePosition(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}
	pid, ok := positionID(c)
	if !ok {
		return
	}

	result, err := h.service.ClosePosition(c.Request.Context(), id, pid)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetFunding(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}
	pid, ok := positionID(c)
	if !ok {
		return
	}

	report, err := h.service.GetAccruedFunding(c.Request.Context(), id, pid)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetFundingByMatch(c *gin.Context) {
	id, ok := auth.MustIdentity(c)
	if !ok {
		return
	}

	size, err := decimal.NewFromString(c.Query("size"))
	if err != nil {
		badRequest(c, "invalid size")
		return
	}
	entry, err := decimal.NewFromString(c.Query("entry_price"))
	if err != nil {
		badRequest(c, "invalid entry_price")
		return
	}

	report, err := h.service.GetFundingByMatch(c.Request.Context(), id, c.Query("market"), size, entry)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RegisterRoutes registers position routes; router must require auth
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	positions := router.Group("/positions")
	{
		positions.GET("", h.ListPositions)
		positions.POST("", h.OpenPosition)
		positions.GET("/funding/match", h.GetFundingByMatch)
		positions.POST("/:id/close", h.ClosePosition)
		positions.GET("/:id/funding", h.GetFunding)
	}
}
