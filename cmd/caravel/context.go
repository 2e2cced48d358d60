package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"caravel/internal/config"
	"caravel/internal/faults"
	"caravel/internal/remote"
	"caravel/internal/remote/localfs"
	"caravel/internal/remote/nextcloud"
	"caravel/internal/runlock"
	"caravel/internal/validation"
	"caravel/internal/validation/bids"
)

// Exit codes distinguish operator-actionable failures from per-mount ones.
const (
	exitFailure = 1
	exitFatal   = 2
	exitBusy    = 3
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
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
			c.configErr = faults.Wrap(faults.ErrConfiguration, "config", "load", "", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// openStore builds the remote facade selected by [remote].backend.
func openStore(cfg *config.Config) (remote.Store, error) {
	switch cfg.Remote.Backend {
	case config.BackendLocalFS:
		var directory localfs.Directory
		if cfg.Remote.DirectoryFile != "" {
			loaded, err := localfs.LoadDirectory(cfg.Remote.DirectoryFile)
			if err != nil {
				return nil, faults.Wrap(faults.ErrConfiguration, "remote", "open", "localfs directory file", err)
			}
			directory = loaded
		}
		return localfs.New(cfg.Remote.Root, directory), nil
	case config.BackendNextcloud:
		timeout := time.Duration(cfg.Remote.RequestTimeout) * time.Second
		return nextcloud.New(cfg.Remote.URL, cfg.Remote.User, cfg.Remote.Password, timeout), nil
	default:
		return nil, faults.Wrap(faults.ErrConfiguration, "remote", "open", fmt.Sprintf("unsupported backend %q", cfg.Remote.Backend), nil)
	}
}

// newRegistry installs the built-in plugin under every configured family.
func newRegistry(cfg *config.Config) (*validation.Registry, error) {
	registry := validation.NewRegistry()
	if err := bids.Register(registry, cfg.Validation.Families...); err != nil {
		return nil, err
	}
	return registry, nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, runlock.ErrHeld):
		return exitBusy
	case faults.IsFatal(err):
		return exitFatal
	default:
		return exitFailure
	}
}
