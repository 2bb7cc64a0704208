package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/balance"
	"github.com/Hazyshades/mantle-estate-sub001/internal/bridge"
	"github.com/Hazyshades/mantle-estate-sub001/internal/database/dbtest"
	"github.com/Hazyshades/mantle-estate-sub001/internal/models"
	"github.com/Hazyshades/mantle-estate-sub001/internal/oracle"
	"github.com/Hazyshades/mantle-estate-sub001/internal/pool"
	"github.com/Hazyshades/mantle-estate-sub001/internal/position"
	"github.com/Hazyshades/mantle-estate-sub001/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// APIIntegrationTestSuite drives the assembled router against sqlite
type APIIntegrationTestSuite struct {
	suite.Suite
	router *gin.Engine
	db     *gorm.DB
	auth   *auth.AuthMiddleware
	token  string
}

func (suite *APIIntegrationTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	suite.db = dbtest.Open(suite.T())
	suite.Require().NoError(suite.db.Create(&models.Market{
		ID:          "nyc",
		City:        "New York",
		IndexPrice:  decimal.NewFromInt(1000),
		MarketPrice: decimal.NewFromInt(1000),
		FundingRate: decimal.Zero,
	}).Error)

	suite.auth = auth.NewAuthMiddleware("integration-secret")
	token, err := suite.auth.IssueToken(auth.Identity{UserID: "alice", Email: "alice@example.com"}, time.Hour)
	suite.Require().NoError(err)
	suite.token = token

	markets := oracle.NewRepository(suite.db)
	ledger := balance.NewLedger(suite.db, balance.NewRepository(suite.db), decimal.NewFromInt(1000), websocket.Discard)
	pools := pool.NewService(pool.NewPoolRepository(suite.db), ledger, markets, websocket.Discard)
	positions := position.NewService(position.NewRepository(suite.db), pools, ledger, markets, decimal.RequireFromString("0.001"))
	verifier, err := bridge.NewABIVerifier()
	suite.Require().NoError(err)
	bridges := bridge.NewService(bridge.NewRepository(suite.db), ledger, nil, verifier, bridge.Config{
		DailyMintLimit: bridge.ToUnits(decimal.NewFromInt(10000)),
	})

	suite.router = newRouter(routes{
		auth:      suite.auth,
		ws:        websocket.NewServer(suite.auth.ParseToken, nil),
		balance:   balance.NewHandler(ledger),
		pools:     pool.NewHandler(pools),
		positions: position.NewHandler(positions),
		bridge:    bridge.NewHandler(bridges),
	})
}

func (suite *APIIntegrationTestSuite) do(method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+suite.token)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *APIIntegrationTestSuite) decode(w *httptest.ResponseRecorder, v interface{}) {
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (suite *APIIntegrationTestSuite) balance() decimal.Decimal {
	w := suite.do(http.MethodGet, "/api/v1/balance", nil, true)
	suite.Require().Equal(http.StatusOK, w.Code)
	var b models.UserBalance
	suite.decode(w, &b)
	return b.Balance
}

func (suite *APIIntegrationTestSuite) TestHealthCheck() {
	w := suite.do(http.MethodGet, "/health", nil, false)
	suite.Equal(http.StatusOK, w.Code)

	var body map[string]interface{}
	suite.decode(w, &body)
	suite.Equal("ok", body["status"])
	suite.Equal("mantle-estate-api", body["service"])
	suite.Equal("nosniff", w.Header().Get("X-Content-Type-Options"))
}

func (suite *APIIntegrationTestSuite) TestProtectedRoutesRequireToken() {
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/balance"},
		{http.MethodGet, "/api/v1/positions"},
		{http.MethodPost, "/api/v1/positions"},
		{http.MethodGet, "/api/v1/pools/positions"},
		{http.MethodPost, "/api/v1/bridge/withdraw"},
	} {
		w := suite.do(route.method, route.path, nil, false)
		suite.Equal(http.StatusUnauthorized, w.Code, route.path)
		suite.Contains(w.Body.String(), "AUTH_HEADER_MISSING")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Contains(w.Body.String(), "AUTH_FAILED")
}

func (suite *APIIntegrationTestSuite) TestPublicRoutes() {
	w := suite.do(http.MethodGet, "/api/v1/pools/nyc", nil, false)
	suite.Equal(http.StatusOK, w.Code)
	var info pool.PoolInfo
	suite.decode(w, &info)
	suite.True(info.SharePrice.Equal(decimal.NewFromInt(1)))
	suite.True(info.TotalLiquidity.IsZero())

	w = suite.do(http.MethodGet, "/api/v1/bridge/mint/limit/0x1111111111111111111111111111111111111111", nil, false)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"remaining"`)
}

func (suite *APIIntegrationTestSuite) TestTradingFlow() {
	suite.True(suite.balance().Equal(decimal.NewFromInt(1000)))

	// provide liquidity
	w := suite.do(http.MethodPost, "/api/v1/pools/nyc/deposit", map[string]string{"amount": "500"}, true)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var flow pool.FlowResult
	suite.decode(w, &flow)
	suite.True(flow.Shares.Equal(decimal.NewFromInt(500)))
	suite.True(flow.NewBalance.Equal(decimal.NewFromInt(500)))

	// 10x long: margin 100, fee 1
	w = suite.do(http.MethodPost, "/api/v1/positions", map[string]string{
		"market_id": "nyc",
		"side":      "long",
		"size":      "1000",
		"leverage":  "10",
	}, true)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var opened models.Position
	suite.decode(w, &opened)
	suite.NotZero(opened.ID)
	suite.True(opened.Margin.Equal(decimal.NewFromInt(100)))
	suite.True(suite.balance().Equal(decimal.NewFromInt(399)))

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/v1/positions/%d/funding", opened.ID), nil, true)
	suite.Equal(http.StatusOK, w.Code)

	// flat close returns margin less the closing fee
	w = suite.do(http.MethodPost, fmt.Sprintf("/api/v1/positions/%d/close", opened.ID), nil, true)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var closed position.CloseResult
	suite.decode(w, &closed)
	suite.True(closed.Settlement.Payout.Equal(decimal.NewFromInt(99)))
	suite.True(suite.balance().Equal(decimal.NewFromInt(498)))

	w = suite.do(http.MethodPost, fmt.Sprintf("/api/v1/positions/%d/close", opened.ID), nil, true)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Contains(w.Body.String(), "ALREADY_EXISTS")

	// both fees and the retained margin stayed in the pool
	w = suite.do(http.MethodGet, "/api/v1/pools/nyc", nil, false)
	suite.Require().Equal(http.StatusOK, w.Code)
	var info pool.PoolInfo
	suite.decode(w, &info)
	suite.True(info.TotalLiquidity.Equal(decimal.NewFromInt(502)), info.TotalLiquidity.String())
	suite.True(info.TotalFeesCollected.Equal(decimal.NewFromInt(2)))

	w = suite.do(http.MethodGet, "/api/v1/pools/positions", nil, true)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"count":1`)
}

func (suite *APIIntegrationTestSuite) TestBridgeWithdrawal() {
	req := map[string]interface{}{
		"user_id": "alice",
		"wallet":  "0x1111111111111111111111111111111111111111",
		"tx_hash": "0x" + fmt.Sprintf("%064x", 7),
		"amount":  int64(250_000_000), // 250 tokens
	}
	w := suite.do(http.MethodPost, "/api/v1/bridge/withdraw", req, true)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	suite.True(suite.balance().Equal(decimal.NewFromInt(750)))

	// replay is rejected and does not debit twice
	w = suite.do(http.MethodPost, "/api/v1/bridge/withdraw", req, true)
	suite.Equal(http.StatusConflict, w.Code)
	suite.True(suite.balance().Equal(decimal.NewFromInt(750)))

	req["user_id"] = "bob"
	req["tx_hash"] = "0x" + fmt.Sprintf("%064x", 8)
	w = suite.do(http.MethodPost, "/api/v1/bridge/withdraw", req, true)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.do(http.MethodGet, "/api/v1/bridge/withdrawals", nil, true)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"count":1`)
}

func TestAPIIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(APIIntegrationTestSuite))
}
