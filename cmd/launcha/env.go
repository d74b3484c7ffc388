package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/audit"
	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/config"
	"github.com/bang0930/mcp-web/internal/logging"
	"github.com/bang0930/mcp-web/internal/orchestrator"
	"github.com/bang0930/mcp-web/internal/registry"
	"github.com/bang0930/mcp-web/internal/replay"
	"github.com/bang0930/mcp-web/internal/store"
	"github.com/bang0930/mcp-web/internal/teardown"
)

// environment holds everything a command needs, wired from one config.
type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	logFile  *os.File
	services *apiclient.Services
	sessions *auth.Store
	store    *store.Store

	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	teardown     *teardown.Coordinator
	replayer     *replay.Replayer
}

func setup(cmd *cobra.Command) (*environment, error) {
	v := config.New()
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	// The browser owns the terminal, so it logs to a file instead.
	var logFile *os.File
	var logger *zap.Logger
	if cmd.Name() == "tui" {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		logFile, err = os.OpenFile(filepath.Join(cfg.DataDir, "launcha.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger, err = logging.NewWithWriter(cfg.Log.Level, cfg.Log.Format, zapcore.AddSync(logFile))
	} else {
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	}
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	e, err := newEnvironment(cfg, logger)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}
	e.logFile = logFile
	return e, nil
}

func newEnvironment(cfg *config.Config, logger *zap.Logger) (*environment, error) {
	services, err := apiclient.NewServices(apiclient.Endpoints{
		Core:       cfg.APIBaseURL,
		Deploy:     cfg.DeployAPIBaseURL,
		Prediction: cfg.PredictionAPIBaseURL,
	}, apiclient.WithTimeout(cfg.RequestTimeout), apiclient.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewStore(cfg.CredentialsPath(), services.Auth, logger)
	if err != nil {
		return nil, err
	}
	sessions.Subscribe(func(ev auth.Event, _ auth.Session) {
		logger.Debug("session changed", zap.Stringer("event", ev))
	})

	st, err := store.New(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	recorder := audit.NewRecorder(st)

	return &environment{
		cfg:      cfg,
		logger:   logger,
		services: services,
		sessions: sessions,
		store:    st,
		registry: registry.New(services.Projects, registry.WithLogger(logger)),
		orchestrator: orchestrator.New(orchestrator.Deps{
			Profile:    services.Profile,
			Prediction: services.Prediction,
			Plan:       services.Plan,
			Deploy:     services.Deploy,
			Drafts:     st,
			Audit:      recorder,
		}, orchestrator.Options{
			SubmitPlan: cfg.Workflow.SubmitPlan,
			MetricName: cfg.Workflow.MetricName,
		}, logger),
		teardown: teardown.New(services.Projects, services.Deploy, st, recorder, logger),
		replayer: replay.New(st, services.Profile, services.Deploy, recorder, cfg.Replay.RatePerSecond, logger),
	}, nil
}

// Close releases the store and flushes logs.
func (e *environment) Close() error {
	err := e.store.Close()
	_ = e.logger.Sync()
	if e.logFile != nil {
		e.logFile.Close()
	}
	return err
}
