// Command client runs the interactive client core: it authenticates with
// the gateway, fetches the starter-world snapshot, connects to the
// replication server, and drives the prediction and interpolation loops.
// Input is a constant forward-cruise snapshot; rendering is out of scope,
// so the client reports its state on an interval instead.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dastari/sidereal-v3/infrastructure/config"
	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/internal/client"
	"github.com/Dastari/sidereal-v3/internal/simcore"
)

func main() {
	log := logging.NewFromEnv("client")

	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Error("invalid .env file")
		os.Exit(2)
	}
	cfg, err := config.LoadClient()
	if err != nil {
		log.WithError(err).Error("invalid client configuration")
		os.Exit(2)
	}
	if cfg.Email == "" || cfg.Password == "" {
		log.Error("CLIENT_EMAIL and CLIENT_PASSWORD are required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := client.NewSession(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed creating client session")
		os.Exit(2)
	}
	defer session.Close()

	if err := session.Login(ctx, cfg.Email, cfg.Password); err != nil {
		if err := session.Register(ctx, cfg.Email, cfg.Password); err != nil {
			log.WithError(err).Error("authentication failed")
			os.Exit(1)
		}
	}
	world := session.WorldSnapshot()
	log.WithFields(logrus.Fields{
		"player_entity_id": world.PlayerEntityID,
		"ship_entity_id":   world.ShipEntityID,
		"ship_name":        world.ShipName,
	}).Info("world snapshot loaded")

	if cfg.AutoConnect {
		if err := session.ConnectReplication(); err != nil {
			log.WithError(err).Error("replication handshake failed")
			os.Exit(1)
		}
		log.Info("replication session bound")
	}

	// A simple cruise input keeps the ship flying so reconciliation and
	// interpolation have live data.
	session.SetInput(simcore.InputSnapshot{ThrustForward: true})

	go reportLoop(ctx, session, log)
	if err := session.Run(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Error("client loop failed")
		os.Exit(1)
	}
}

func reportLoop(ctx context.Context, session *client.Session, log *logging.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			predicted := session.Predicted()
			log.WithFields(logrus.Fields{
				"position_m":   []float64{predicted.Position.X, predicted.Position.Y, predicted.Position.Z},
				"velocity_mps": predicted.Velocity.Length(),
				"heading_rad":  predicted.HeadingRad,
				"health":       predicted.Health,
				"remotes":      session.RemoteCount(),
			}).Info("client state")
			if dialog, ok := session.Dialogs.Current(); ok {
				log.WithFields(logrus.Fields{
					"level": dialog.Level,
					"title": dialog.Title,
				}).Warn(dialog.Message)
				session.Dialogs.Acknowledge()
			}
		}
	}
}
