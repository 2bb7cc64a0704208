package main

import (
	"net/http"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/balance"
	"github.com/Hazyshades/mantle-estate-sub001/internal/bridge"
	"github.com/Hazyshades/mantle-estate-sub001/internal/metrics"
	"github.com/Hazyshades/mantle-estate-sub001/internal/middleware"
	"github.com/Hazyshades/mantle-estate-sub001/internal/pool"
	"github.com/Hazyshades/mantle-estate-sub001/internal/position"
	"github.com/Hazyshades/mantle-estate-sub001/internal/websocket"
	"github.com/gin-gonic/gin"
)

// routes holds everything the HTTP surface needs
type routes struct {
	auth           *auth.AuthMiddleware
	ws             *websocket.Server
	limiter        auth.Limiter
	allowedOrigins []string

	balance   *balance.Handler
	pools     *pool.Handler
	positions *position.Handler
	bridge    *bridge.Handler
}

func newRouter(r routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(metrics.Middleware())

	// Security middleware
	router.Use(auth.SecurityHeaders())
	router.Use(auth.SecureCORS(r.allowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
			"service":   "mantle-estate-api",
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.ws.RegisterRoutes(router.Group(""))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		r.pools.RegisterPublicRoutes(v1)
		r.bridge.RegisterPublicRoutes(v1)

		protected := v1.Group("", r.auth.RequireAuth())
		r.balance.RegisterRoutes(protected)
		r.pools.RegisterRoutes(protected)
		r.positions.RegisterRoutes(protected)
		r.bridge.RegisterRoutes(protected, auth.RateLimitByAddress(r.limiter))
	}
	return router
}
