package main

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/yojana/internal/advisor"
	"github.com/fyrsmithlabs/yojana/internal/config"
	"github.com/fyrsmithlabs/yojana/internal/eligibility"
	"github.com/fyrsmithlabs/yojana/internal/embeddings"
	"github.com/fyrsmithlabs/yojana/internal/index"
	"github.com/fyrsmithlabs/yojana/internal/logging"
	"github.com/fyrsmithlabs/yojana/internal/memory"
	"github.com/fyrsmithlabs/yojana/internal/query"
	"github.com/fyrsmithlabs/yojana/internal/telemetry"
)

// app owns every long-lived resource behind a command.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	embedder  embeddings.Provider
	index     index.Index
	store     memory.StatsStore
	svc       *advisor.Service
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadWithFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp wires the core from configuration. Resources opened before a
// failure are released.
func newApp(ctx context.Context) (_ *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close(ctx)
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a.logger, err = logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zl := a.logger.Underlying()

	a.embedder, err = embeddings.NewProvider(embeddings.ConfigFromApp(cfg.Embeddings), zl.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}

	a.index, err = index.New(ctx, cfg.Index, zl.Named("index"))
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	a.store, err = memory.NewStore(ctx, cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("opening stats store: %w", err)
	}

	aliases := query.DefaultAliases()
	if cfg.Data.AliasesPath != "" {
		if aliases, err = query.LoadAliasTable(cfg.Data.AliasesPath); err != nil {
			return nil, err
		}
	}

	var rules *eligibility.RuleSet
	if cfg.Data.RulesPath != "" {
		if rules, err = eligibility.LoadRuleSet(cfg.Data.RulesPath); err != nil {
			return nil, err
		}
	}

	a.svc, err = advisor.NewService(advisor.Deps{
		Interpreter: query.NewInterpreter(aliases),
		Embedder:    a.embedder,
		Index:       a.index,
		Memory:      memory.NewModel(a.store, memory.WithLogger(zl.Named("memory"))),
		Rules:       rules,
		Retrieval:   cfg.Retrieval,
		Reinforce:   cfg.Memory.Reinforce,
		Logger:      a.logger.Named("advisor"),
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug(ctx, "yojana initialized",
		zap.String("index", cfg.Index.Backend),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("memory", cfg.Memory.Store),
		zap.Bool("rules_loaded", rules != nil),
	)
	return a, nil
}

// close releases resources in reverse order of creation.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn(ctx, "closing resources", zap.Error(err))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	return fn(a)
}
