package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mridulgoel03/ETF-trading-project/internal/api"
	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
	"github.com/mridulgoel03/ETF-trading-project/internal/config"
	"github.com/mridulgoel03/ETF-trading-project/internal/engine"
	"github.com/mridulgoel03/ETF-trading-project/internal/journal"
	"github.com/mridulgoel03/ETF-trading-project/internal/ledger"
	"github.com/mridulgoel03/ETF-trading-project/internal/treasury"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the simulator gateway",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = setupLogger(cfg)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	projector := ledger.NewProjector(
		ledger.NewMemoryOrderRepository(),
		ledger.NewMemoryFillRepository(),
		ledger.NewMemoryIndexRepository(),
	)

	// Journal first in the fan-out, so an event is durable before any
	// projection or subscriber sees it.
	sinks := engine.MultiSink{}

	var eventStore journal.EventStore
	var snapshotStore journal.SnapshotStore
	if cfg.Journal.Enabled {
		store, err := journal.NewFileEventStore(cfg.Journal.Dir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		snapshots, err := journal.NewFileSnapshotStore(cfg.Journal.Dir)
		if err != nil {
			return fmt.Errorf("open snapshots: %w", err)
		}
		defer snapshots.Close()

		recovery := journal.NewFileRecoveryService(store, snapshots)
		if err := rebuildReadModels(ctx, store, recovery, projector, logger); err != nil {
			return err
		}

		sinks = append(sinks, journal.NewSink(store, logger))
		eventStore = store
		snapshotStore = snapshots
	}

	sinks = append(sinks, engine.SinkFunc(func(indexID string, events []basket.Event) {
		for _, event := range events {
			if err := projector.Project(ctx, event); err != nil {
				logger.WithError(err).WithField("index_id", indexID).Warn("ledger projection failed")
			}
		}
	}))

	hub := api.NewHub(logger)
	sinks = append(sinks, hub)

	treasurySvc := treasury.NewMemoryService()
	eng := engine.New(engineCfg, treasurySvc, sinks)

	router := api.NewRouter(eng, treasurySvc, hub, logger, api.RouterConfig{
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown incomplete")
	}

	if eventStore != nil && snapshotStore != nil {
		captureSnapshots(ctx, eventStore, snapshotStore, eng, logger)
	}

	eng.Stop()
	hub.Close()
	logger.Info("Simulator stopped")

	return nil
}

// rebuildReadModels replays the journal into the ledger before the engine
// starts publishing fresh events.
func rebuildReadModels(ctx context.Context, store journal.EventStore, recovery journal.RecoveryService, projector *ledger.Projector, log *logrus.Logger) error {
	indices, err := store.ListIndices(ctx)
	if err != nil {
		return fmt.Errorf("list journaled indices: %w", err)
	}

	for _, indexID := range indices {
		snapshot, events, err := recovery.Recover(ctx, indexID)
		if err != nil {
			return fmt.Errorf("recover %s: %w", indexID, err)
		}
		if snapshot != nil {
			if err := projector.Restore(ctx, snapshot.State); err != nil {
				return fmt.Errorf("restore %s: %w", indexID, err)
			}
		}
		for _, event := range events {
			if err := projector.Project(ctx, event); err != nil {
				return fmt.Errorf("replay %s: %w", indexID, err)
			}
		}
		log.WithFields(logrus.Fields{
			"index_id": indexID,
			"snapshot": snapshot != nil,
			"events":   len(events),
		}).Info("recovered read models")
	}

	return nil
}

// captureSnapshots saves one snapshot per journaled index so the next boot
// replays only the event tail.
func captureSnapshots(ctx context.Context, store journal.EventStore, snapshots journal.SnapshotStore, eng *engine.Engine, log *logrus.Logger) {
	indices, err := store.ListIndices(ctx)
	if err != nil {
		log.WithError(err).Warn("snapshot capture skipped")
		return
	}

	for _, indexID := range indices {
		result := eng.Submit(&engine.CommandEnvelope{
			CommandType: engine.CommandTypeQueryIndex,
			IndexID:     indexID,
			Payload:     &basket.QueryIndexRequest{IndexID: indexID},
			CreatedAt:   time.Now(),
		})
		if result.ErrorCode != engine.ErrorCodeNone {
			log.WithField("index_id", indexID).WithError(result.Err).Warn("snapshot capture failed")
			continue
		}
		state, ok := result.Result.(*basket.IndexState)
		if !ok {
			continue
		}

		snapshot := &journal.Snapshot{
			Version:      1,
			IndexID:      indexID,
			LastSequence: state.LastSequence,
			CapturedAt:   time.Now(),
			State:        *state,
		}
		if err := snapshots.Save(ctx, snapshot); err != nil {
			log.WithField("index_id", indexID).WithError(err).Warn("snapshot capture failed")
			continue
		}
		log.WithFields(logrus.Fields{
			"index_id": indexID,
			"sequence": state.LastSequence,
		}).Info("captured snapshot")
	}
}
