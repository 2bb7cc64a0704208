package position

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hazyshades/mantle-estate-sub001/internal/apperr"
	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/funding"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockService is a mock implementation of Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) OpenPosition(ctx context.Context, id auth.Identity, req OpenRequest) (*View, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*View), args.Error(1)
}

func (m *MockService) ClosePosition(ctx context.Context, id auth.Identity, positionID uint) (*CloseResult, error) {
	args := m.Called(ctx, id, positionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CloseResult), args.Error(1)
}

func (m *MockService) ListPositions(ctx context.Context, id auth.Identity, openOnly bool) ([]*View, error) {
	args := m.Called(ctx, id, openOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*View), args.Error(1)
}

func (m *MockService) GetAccruedFunding(ctx context.Context, id auth.Identity, positionID uint) (*FundingReport, error) {
	args := m.Called(ctx, id, positionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FundingReport), args.Error(1)
}

func (m *MockService) FindMatchingOpenPosition(ctx context.Context, id auth.Identity, market string, approxSize, approxEntryPrice decimal.Decimal) (*models.Position, error) {
	args := m.Called(ctx, id, market, approxSize, approxEntryPrice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Position), args.Error(1)
}

func (m *MockService) GetFundingByMatch(ctx context.Context, id auth.Identity, market string, approxSize, approxEntryPrice decimal.Decimal) (*FundingReport, error) {
	args := m.Called(ctx, id, market, approxSize, approxEntryPrice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FundingReport), args.Error(1)
}

var alice = auth.Identity{UserID: "alice"}

func setupRouter(service Service, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/v1")
	group.Use(func(c *gin.Context) {
		if authenticated {
			auth.SetIdentity(c, alice)
		}
		c.Next()
	})
	NewHandler(service).RegisterRoutes(group)
	return router
}

func TestListPositions_Handler(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(mockService, true)

	mockService.On("ListPositions", mock.Anything, alice, true).
		Return([]*View{NewView(&models.Position{ID: 7, MarketID: "nyc"})}, nil)

	req, _ := http.NewRequest(http.MethodGet, "/v1/positions?open=true", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Positions []map[string]interface{} `json:"positions"`
		Count     int                      `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, float64(7), body.Positions[0]["id"])
	assert.NotContains(t, body.Positions[0], "closed")
	mockService.AssertExpectations(t)
}

func TestOpenPosition_Handler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(mockService, true)

		mockService.On("OpenPosition", mock.Anything, alice, mock.MatchedBy(func(req OpenRequest) bool {
			return req.MarketID == "nyc" && req.Side == models.SideShort && req.Size.Equal(decimal.NewFromInt(5000))
		})).Return(NewView(&models.Position{ID: 1}), nil)

		body := `{"market_id":"nyc","side":"short","size":"5000","leverage":"5"}`
		req, _ := http.NewRequest(http.MethodPost, "/v1/positions", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusCreated, resp.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("MissingMarket", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(mockService, true)

		req, _ := http.NewRequest(http.MethodPost, "/v1/positions", bytes.NewBufferString(`{"side":"long"}`))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(mockService, false)

		req, _ := http.NewRequest(http.MethodPost, "/v1/positions", bytes.NewBufferString(`{}`))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}

func TestClosePosition_Handler(t *testing.T) {
	t.Run("AlreadyClosed", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(mockService, true)

		mockService.On("ClosePosition", mock.Anything, alice, uint(3)).
			Return(nil, apperr.AlreadyExists("position 3 is already closed"))

		req, _ := http.NewRequest(http.MethodPost, "/v1/positions/3/close", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusConflict, resp.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidID", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(mockService, true)

		req, _ := http.NewRequest(http.MethodPost, "/v1/positions/abc/close", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestGetFunding_Handler(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(mockService, true)

	mockService.On("GetAccruedFunding", mock.Anything, alice, uint(4)).Return(&FundingReport{
		Position: &models.Position{ID: 4},
		Accrued:  funding.Fee{Amount: decimal.RequireFromString("879.27"), Direction: funding.DirectionPay},
	}, nil)

	req, _ := http.NewRequest(http.MethodGet, "/v1/positions/4/funding", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"amount":"879.27"`)
	mockService.AssertExpectations(t)
}

func TestGetFundingByMatch_Handler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(mockService, true)

		mockService.On("GetFundingByMatch", mock.Anything, alice, "nyc", mock.Anything, mock.Anything).
			Return(nil, apperr.NotFound("no open position"))

		req, _ := http.NewRequest(http.MethodGet, "/v1/positions/funding/match?market=nyc&size=1000&entry_price=500", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusNotFound, resp.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidSize", func(t *testing.T) {
		mockService := new(MockService)
		router := setupRouter(mockService, true)

		req, _ := http.NewRequest(http.MethodGet, "/v1/positions/funding/match?market=nyc&size=abc&entry_price=500", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}
