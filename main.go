package main

import (
	"encoding/json"
	stdlog "log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/temadison/stockdash/backend/src/config"
	"github.com/temadison/stockdash/backend/src/database"
	"github.com/temadison/stockdash/backend/src/handlers"
	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/pricing"
	"github.com/temadison/stockdash/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Stockdash backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)
	db := database.DB

	httpClient := &http.Client{
		Timeout: config.Cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: config.Cfg.ConnectTimeout}).DialContext,
		},
	}

	pacer := pricing.NewRequestPacer(config.Cfg.MinRequestSpacing, config.Cfg.RetryAfterCap)
	breaker := pricing.NewCircuitBreaker(config.Cfg.BreakerFailureRatio, config.Cfg.BreakerWindowSize, config.Cfg.BreakerCooldown)
	fetcher := pricing.NewSeriesFetcher(pricing.FetcherConfig{
		BaseURL:          config.Cfg.AlphaVantageBaseURL,
		APIKey:           config.Cfg.AlphaVantageAPIKey,
		FetchDeadline:    config.Cfg.FetchDeadline,
		RetryMaxAttempts: config.Cfg.RetryMaxAttempts,
		RetryWait:        config.Cfg.RetryWaitInterval,
	}, httpClient, pacer, breaker)
	marketPrice := pricing.NewMarketPriceService(
		config.Cfg.AlphaVantageBaseURL, config.Cfg.AlphaVantageAPIKey,
		httpClient, pacer, config.Cfg.LivePriceCacheDuration)

	fallbackService := services.NewFallbackSeriesService(db)
	syncService := services.NewPriceSyncService(db, fetcher, fallbackService,
		config.Cfg.LocalFallbackEnabled, config.Cfg.LocalFallbackLookbackDays)
	portfolioService := services.NewPortfolioService(db, marketPrice)
	importService := services.NewCSVImportService(db)
	jobRecorder := services.NewJobRunRecorder(db)

	if config.Cfg.SyncEnabled {
		scheduler := services.NewSyncJobScheduler(db, syncService, jobRecorder, config.Cfg.SyncCronSpec)
		if err := scheduler.Start(); err != nil {
			logger.L.Error("Failed to start price sync scheduler", "error", err)
		} else {
			defer scheduler.Stop()
		}
	}

	portfolioHandler := handlers.NewPortfolioHandler(db, syncService, portfolioService, importService, jobRecorder)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Stockdash Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/portfolio", func(r chi.Router) {
			r.Post("/prices/sync", portfolioHandler.HandleSyncPrices)
			r.Get("/prices/history", portfolioHandler.HandlePriceHistory)
			r.Get("/daily-summary", portfolioHandler.HandleDailySummary)
			r.Get("/performance", portfolioHandler.HandlePerformance)
			r.Get("/symbols", portfolioHandler.HandleListSymbols)
			r.Post("/transactions/upload", portfolioHandler.HandleUploadTransactions)
		})
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
