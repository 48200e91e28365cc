// Command replication runs the authoritative simulation and replication
// server: graph hydration, the fixed-tick loop, session auth binding,
// interest-filtered delta delivery, bootstrap processing, and batched
// persistence write-back.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dastari/sidereal-v3/infrastructure/config"
	"github.com/Dastari/sidereal-v3/infrastructure/database"
	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/infrastructure/metrics"
	"github.com/Dastari/sidereal-v3/internal/netproto"
	"github.com/Dastari/sidereal-v3/internal/persistence"
	"github.com/Dastari/sidereal-v3/internal/replication"
)

func main() {
	log := logging.NewFromEnv("replication")

	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Error("invalid .env file")
		os.Exit(2)
	}
	cfg, err := config.LoadReplication()
	if err != nil {
		log.WithError(err).Error("invalid replication configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence is best-effort at startup: an unreachable store logs and
	// the server runs with an empty known-entity cache.
	var graphStore *persistence.Store
	var bootstrapStore replication.BootstrapStore
	db, err := database.OpenWithRetry(ctx, cfg.DatabaseURL, 30*time.Second)
	if err != nil {
		log.WithError(err).Warn("replication database unreachable; running without persistence")
		bootstrapStore = replication.NewInMemoryBootstrapStore()
	} else {
		defer db.Close()
		graphStore = persistence.NewStore(db)
		bootstrapStore = replication.NewPostgresBootstrapStore(db)
	}

	endpoint, err := netproto.Listen(cfg.UDPBind, log)
	if err != nil {
		log.WithError(err).Error("failed binding replication UDP endpoint")
		os.Exit(2)
	}
	defer endpoint.Close()

	m := metrics.New("replication")
	server := replication.NewServer(cfg, log, m, endpoint, graphStore)
	server.Hydrate(ctx)

	listener, err := replication.NewControlListener(ctx, cfg.ControlUDPBind, bootstrapStore, graphStore, server, log)
	if err != nil {
		log.WithError(err).Error("failed starting replication control listener")
		os.Exit(2)
	}
	defer listener.Close()
	go listener.Run(ctx)

	if cfg.MetricsBind != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer := &http.Server{
				Addr:              cfg.MetricsBind,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			log.WithField("bind", cfg.MetricsBind).Info("metrics listener started")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics listener failed")
			}
		}()
	}

	if err := server.Run(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Error("replication server failed")
		os.Exit(1)
	}
}
