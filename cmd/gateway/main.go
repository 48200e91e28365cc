// Command gateway runs the HTTP auth gateway: account lifecycle, token
// issuance, the starter-world snapshot endpoint, and the one-shot bootstrap
// dispatch on registration.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dastari/sidereal-v3/infrastructure/config"
	"github.com/Dastari/sidereal-v3/infrastructure/database"
	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/infrastructure/metrics"
	"github.com/Dastari/sidereal-v3/internal/gateway"
	"github.com/Dastari/sidereal-v3/internal/persistence"
)

func main() {
	log := logging.NewFromEnv("gateway")

	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Error("invalid .env file")
		os.Exit(2)
	}
	cfg, err := config.LoadGateway()
	if err != nil {
		log.WithError(err).Error("invalid gateway configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenWithRetry(ctx, cfg.DatabaseURL, 30*time.Second)
	if err != nil {
		log.WithError(err).Error("gateway database unreachable")
		os.Exit(2)
	}
	defer db.Close()

	store := gateway.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.WithError(err).Error("failed ensuring auth schema")
		os.Exit(2)
	}

	graphStore := persistence.NewStore(db)
	if err := graphStore.EnsureSchema(ctx); err != nil {
		log.WithError(err).Error("failed ensuring graph schema")
		os.Exit(2)
	}

	var dispatcher gateway.BootstrapDispatcher
	if cfg.BootstrapMode == "udp" {
		udpDispatcher, err := gateway.NewUDPBootstrapDispatcher(cfg.ControlUDPAddr)
		if err != nil {
			log.WithError(err).Error("invalid replication control UDP config")
			os.Exit(2)
		}
		defer udpDispatcher.Close()
		dispatcher = udpDispatcher
	} else {
		dispatcher = gateway.NewDirectBootstrapDispatcher(graphStore)
	}

	service := gateway.NewService(gateway.ServiceConfig{
		JWTSecret:        []byte(cfg.JWTSecret),
		AccessTokenTTLS:  cfg.AccessTokenTTLS,
		RefreshTokenTTLS: cfg.RefreshTokenTTLS,
		ResetTokenTTLS:   cfg.ResetTokenTTLS,
	}, store, dispatcher, log)

	m := metrics.New("gateway")
	api := gateway.NewAPI(service, graphStore, log, m, gateway.APIConfig{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AssetRoot:      cfg.AssetRoot,
	})

	server := &http.Server{
		Addr:              cfg.Bind,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithField("bind", cfg.Bind).Info("gateway listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("gateway server failed")
		os.Exit(1)
	}
}
