package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/calvinwijaya/twentyone/internal/api"
	"github.com/calvinwijaya/twentyone/internal/config"
	"github.com/calvinwijaya/twentyone/internal/game"
	"github.com/calvinwijaya/twentyone/internal/store"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"twentyone.hcl" env:"TWENTYONE_CONFIG" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" env:"TWENTYONE_ADDR" help:"Listen address host:port (overrides config)"`
	LogLevel string `short:"l" long:"log-level" env:"TWENTYONE_LOG_LEVEL" help:"Log level (overrides config)"`
	Seed     *int64 `help:"Seed every session's deck for reproducible deals"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("twentyone"),
		kong.Description("Single-player 21 game server"),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		log.Error("Error loading config", "error", err)
		ctx.Exit(1)
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	listenAddr := cfg.ListenAddr()
	if CLI.Addr != "" {
		listenAddr = CLI.Addr
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", cfg.Server.LogLevel)
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	// Validate already ran in Load
	idleTimeout, _ := cfg.IdleTimeout()
	sweepEvery, _ := cfg.SweepEvery()

	engineOpts := []game.Option{game.WithLogger(logger)}
	if CLI.Seed != nil {
		engineOpts = append(engineOpts, game.WithSeed(*CLI.Seed))
		logger.Warn("Seeded decks enabled, every session deals the same cards", "seed", *CLI.Seed)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := store.NewMemoryStore(quartz.NewReal(), logger, engineOpts...)
	sweeper := sessions.StartSweeper(runCtx, sweepEvery, idleTimeout)
	logger.Info("Session store initialized", "idleTimeout", idleTimeout, "sweepEvery", sweepEvery)

	hub := api.NewHub(logger, cfg.Server.AllowedOrigins)
	go hub.Run(runCtx)
	sessions.OnEvict(hub.CloseSession)

	handlers := api.NewHandlers(sessions, hub, logger)

	r := mux.NewRouter()
	handlers.RegisterRoutes(r)

	httpLogger := logger.WithPrefix("http")
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			httpLogger.Info("Request", "method", r.Method, "uri", r.RequestURI, "duration", time.Since(start))
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", "error", err)
			ctx.Exit(1)
		}
	case <-runCtx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}

	stop()
	_ = sweeper.Wait()
	logger.Info("Server stopped")
}
