package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub001/internal/balance"
	"github.com/Hazyshades/mantle-estate-sub001/internal/bridge"
	"github.com/Hazyshades/mantle-estate-sub001/internal/config"
	"github.com/Hazyshades/mantle-estate-sub001/internal/database"
	"github.com/Hazyshades/mantle-estate-sub001/internal/oracle"
	"github.com/Hazyshades/mantle-estate-sub001/internal/pool"
	"github.com/Hazyshades/mantle-estate-sub001/internal/position"
	"github.com/Hazyshades/mantle-estate-sub001/internal/websocket"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Server exited with error")
	}
	logrus.Info("Server exited")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return err
	}

	// Redis connection; the services degrade to uncached reads and no rate
	// limiting while it is down
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to connect to Redis")
	}

	// Chain adapter
	var chain bridge.Chain
	if cfg.Chain.RPCURL != "" {
		ethChain, err := bridge.DialChain(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return err
		}
		defer ethChain.Close()
		chain = ethChain
	} else {
		logrus.Warn("ETH_RPC_URL not set, mint and deposit verification disabled")
	}
	verifier, err := bridge.NewABIVerifier()
	if err != nil {
		return err
	}

	authMiddleware := auth.NewAuthMiddleware(cfg.Auth.JWTSecret)

	wsServer := websocket.NewServer(authMiddleware.ParseToken, cfg.Auth.AllowedOrigins)
	wsServer.Start()
	defer wsServer.Stop()

	// Services
	markets := oracle.NewCachedOracle(oracle.NewRepository(db), rdb, cfg.Redis.OracleTTL)
	ledger := balance.NewLedger(db, balance.NewRepository(db), cfg.Ledger.StartingBalance, wsServer.Hub)
	poolService := pool.NewService(pool.NewPoolRepository(db), ledger, markets, wsServer.Hub)
	positionService := position.NewService(position.NewRepository(db), poolService, ledger, markets, cfg.Ledger.TradingFeeRate)
	bridgeService := bridge.NewService(bridge.NewRepository(db), ledger, chain, verifier, bridge.Config{
		TokenContract:  common.HexToAddress(cfg.Chain.TokenContract),
		VaultContract:  common.HexToAddress(cfg.Chain.VaultContract),
		DailyMintLimit: bridge.ToUnits(cfg.Ledger.DailyMintLimit),
	})

	var limiter auth.Limiter
	if cfg.Redis.BridgeRateLimit > 0 {
		limiter = auth.NewRedisLimiter(rdb, cfg.Redis.BridgeRateLimit, time.Minute)
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(routes{
		auth:           authMiddleware,
		ws:             wsServer,
		limiter:        limiter,
		allowedOrigins: cfg.Auth.AllowedOrigins,
		balance:        balance.NewHandler(ledger),
		pools:          pool.NewHandler(poolService),
		positions:      position.NewHandler(positionService),
		bridge:         bridge.NewHandler(bridgeService),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("port", cfg.Port).Info("Starting Mantle Estate API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
