package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mikequentel/socpost/internal/config"
	"github.com/mikequentel/socpost/internal/history"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/platforms"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
)

// commandContext carries flag values and lazily loaded shared state.
type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string

	// newFactory builds the poster factory; tests swap in fakes.
	newFactory func(cfg *config.Config, hook func(retry.Attempt)) publish.Factory

	configOnce sync.Once
	config     *config.Config
	configErr  error
	log        logger.Logger
}

func newCommandContext() *commandContext {
	return &commandContext{
		newFactory: func(cfg *config.Config, hook func(retry.Attempt)) publish.Factory {
			return platforms.New(cfg, platforms.WithRetryHook(hook))
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevel != "" {
			cfg.Logging.Level = c.logLevel
		}
		if c.logFormat != "" {
			cfg.Logging.Format = c.logFormat
		}
		c.config = cfg
		c.log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() logger.Logger {
	if c.log == nil {
		return logger.Nop()
	}
	return c.log
}

// openHistory returns nil when the ledger is disabled.
func (c *commandContext) openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg.History.Path, c.logger())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// orchestrator wires the factory and observers. Observers may be nil.
func (c *commandContext) orchestrator(cfg *config.Config, hook func(retry.Attempt), observers ...publish.Observer) *publish.Orchestrator {
	opts := []publish.Option{publish.WithLogger(c.logger())}
	for _, obs := range observers {
		opts = append(opts, publish.WithObserver(obs))
	}
	return publish.NewOrchestrator(c.newFactory(cfg, hook), opts...)
}
