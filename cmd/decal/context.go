package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"decal/internal/catalog"
	"decal/internal/config"
	"decal/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	sessionOnce sync.Once
	logger      *slog.Logger
	logPath     string
	sessionErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session returns the run logger, creating the log file on first use.
func (c *commandContext) session() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.sessionOnce.Do(func() {
		c.logger, c.logPath, c.sessionErr = logging.NewSession(cfg)
		if c.sessionErr == nil && c.logPath != "" {
			c.logger.Debug("session log opened", logging.String("path", c.logPath))
		}
	})
	return c.logger, c.sessionErr
}

// withCatalog opens the pack catalog and closes it when fn returns.
func (c *commandContext) withCatalog(fn func(*catalog.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// acquireLock serializes commands that write to the data or output trees.
// The caller must invoke the returned release function.
func (c *commandContext) acquireLock() (func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return nil, fmt.Errorf("another decal instance is using the data directory (lock %s)", cfg.LockPath())
	}
	return func() { _ = lock.Unlock() }, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
