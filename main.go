package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	ossignal "os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kalshiEdgeBot/config"
	"kalshiEdgeBot/internal/adapters/binancefeed"
	"kalshiEdgeBot/internal/adapters/kalshiclient"
	"kalshiEdgeBot/internal/adapters/logger"
	"kalshiEdgeBot/internal/adapters/sqlite"
	"kalshiEdgeBot/internal/edge"
	"kalshiEdgeBot/internal/engine"
	"kalshiEdgeBot/internal/executor"
	"kalshiEdgeBot/internal/ledger"
	"kalshiEdgeBot/internal/risk"
	"kalshiEdgeBot/internal/server"
	"kalshiEdgeBot/internal/settle"
	"kalshiEdgeBot/internal/signal"
	"kalshiEdgeBot/internal/sizing"
)

// engineStatus combines the live state the status endpoint needs.
type engineStatus struct {
	*engine.Engine
	*risk.Guard
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Decision Ledger
	decisionLedger, err := ledger.Open(cfg.LedgerPath, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to open decision ledger: %v", err)
	}
	defer func() {
		if err := decisionLedger.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing decision ledger")
		}
	}()

	// 5. Initialize Exchange Client (Kalshi Adapter)
	exchange, err := kalshiclient.New(kalshiclient.Config{
		BaseURL:       cfg.BaseURL,
		APIKeyID:      cfg.APIKeyID,
		PrivateKeyPEM: cfg.PrivateKeyPEM,
		Logger:        appLogger.WithComponent("kalshi"),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Kalshi client: %v", err)
	}

	// 6. Initialize Price Feed (Binance Adapter)
	feed, err := binancefeed.New(binancefeed.Config{
		Logger: appLogger.WithComponent("binance"),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance feed: %v", err)
	}

	// 7. Initialize Signal Estimator
	forecaster, err := signal.NewLogNormalForecaster(cfg.MomentumTilt)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize forecaster: %v", err)
	}
	estimator, err := signal.New(signal.Config{
		ShortLookback:        cfg.ShortLookback,
		MediumLookback:       cfg.MediumLookback,
		LongLookback:         cfg.LongLookback,
		ShortWeight:          cfg.ShortWeight,
		MediumWeight:         cfg.MediumWeight,
		LongWeight:           cfg.LongWeight,
		VolatileVolThreshold: cfg.VolatileVolThreshold,
		TrendingMomThreshold: cfg.TrendingMomThreshold,
	}, forecaster, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal estimator: %v", err)
	}

	// 8. Initialize Edge Calculator and Sizer
	calc, err := edge.New(edge.Config{
		MinEdge:            cfg.MinEdge,
		DynamicMinEdge:     cfg.DynamicMinEdge,
		MinEdgeTrending:    cfg.MinEdgeTrending,
		MinEdgeVolatile:    cfg.MinEdgeVolatile,
		MinEdgeFloor:       cfg.MinEdgeFloor,
		MinEdgeCeiling:     cfg.MinEdgeCeiling,
		MaxSnapshotAge:     cfg.MaxSnapshotAge,
		MinMinutesToExpiry: cfg.MinMinutesToExpiry,
		MaxMinutesToExpiry: cfg.MaxMinutesToExpiry,
		MinStrikeGapPct:    cfg.MinStrikeGapPct,
		MinPriceCents:      cfg.MinPriceCents,
		MaxPriceCents:      cfg.MaxPriceCents,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize edge calculator: %v", err)
	}
	sizer, err := sizing.New(sizing.Config{
		KellyFraction:  cfg.KellyFraction,
		MaxPositionPct: cfg.MaxPositionPct,
		MinContracts:   cfg.MinContracts,
		MaxContracts:   cfg.MaxContracts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}

	// 9. Initialize Risk Guard and Executor
	guard := risk.NewGuard(risk.GuardConfig{
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		MaxExposurePct:   cfg.MaxExposurePct,
		MaxOpenPositions: cfg.MaxOpenPositions,
		MaxDailyLossPct:  cfg.MaxDailyLossPct,
		LatencySLA:       cfg.LatencySLA,
	}, appLogger.WithComponent("risk"))

	exec, err := executor.New(exchange, repo, appLogger.WithComponent("executor"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize order executor: %v", err)
	}

	// 10. Initialize Settlement Reconciler
	reconciler, err := settle.New(settle.Config{
		Interval:   cfg.ReconcileInterval,
		Underlying: cfg.Underlying,
	}, exchange, feed, repo, decisionLedger, guard, appLogger.WithComponent("settle"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize settlement reconciler: %v", err)
	}

	// 11. Initialize Engine
	eng, err := engine.New(engine.Config{
		SeriesTicker:  cfg.SeriesTicker,
		Underlying:    cfg.Underlying,
		KlineInterval: cfg.KlineInterval,
		KlineLimit:    cfg.KlineLimit,
		CycleInterval: cfg.CycleInterval,
		MaxConcurrent: cfg.MaxConcurrent,
		Sentiment:     cfg.SentimentBias,
		DryRun:        cfg.DryRun,
	}, appLogger.WithComponent("engine"), exchange, feed, estimator, calc, sizer, guard, exec, repo, decisionLedger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	// 12. Initialize HTTP Query Server
	httpServer, err := server.New(server.Config{Addr: cfg.HTTPAddr}, repo,
		&engineStatus{Engine: eng, Guard: guard}, appLogger.WithComponent("http"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	// 13. Run until SIGINT/SIGTERM
	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := exchange.Ping(ctx); err != nil {
		appLogger.Error(ctx, err, "Exchange not reachable at startup")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Start(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return httpServer.Start() })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		appLogger.Error(context.Background(), err, "Application exited with error")
		return
	}
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
