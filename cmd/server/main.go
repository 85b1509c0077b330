package main

import (
	"flag"
	"os"
	"time"

	"ledger-reconciliation-backend/internal/config"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/routes"
	"ledger-reconciliation-backend/internal/services/banksync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New("error", true)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(cfg.Log.Level, cfg.Server.Mode == gin.DebugMode)

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	providers := banksync.NewProviders(cfg.Sync.BridgeURL, cfg.Sync.Token, cfg.Sync.Timeout)
	syncCfg := banksync.Config{
		OnBudgetLookbackDays:   cfg.Sync.OnBudgetLookbackDays,
		OffBudgetLookbackDays:  cfg.Sync.OffBudgetLookbackDays,
		IncrementalOverlapDays: cfg.Sync.IncrementalOverlapDays,
		Concurrency:            cfg.Sync.Concurrency,
	}
	if err := routes.RegisterRoutes(r, db, providers, syncCfg); err != nil {
		log.Fatal().Err(err).Msg("register routes")
	}

	log.Info().Str("addr", cfg.Server.Addr()).Msg("listening")
	if err := r.Run(cfg.Server.Addr()); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
