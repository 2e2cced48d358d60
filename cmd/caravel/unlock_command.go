package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"caravel/internal/discovery"
	"caravel/internal/faults"
	"caravel/internal/lock"
	"caravel/internal/logging"
	"caravel/internal/remote"
)

func newUnlockCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <mount>...",
		Short: "Remove the lock marker from upload mounts",
		Long: "Remove the lock marker left on an upload mount after a report or an internal error, " +
			"so contributors can write to it and the next run admits it again.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return faults.Wrap(faults.ErrConfiguration, "config", "directories", "", err)
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			directory, err := discovery.Discover(cmd.Context(), store, logger)
			if err != nil {
				return err
			}
			locks := lock.NewManager(store, filepath.Join(cfg.Paths.WorkDir, "tmp"), "caravel unlock", logger)

			out := cmd.OutOrStdout()
			for _, mount := range args {
				name := filepath.Base(filepath.Clean(mount))
				share, ok := directory.Share(name)
				if !ok {
					known := strings.Join(directory.ShareNames(), ", ")
					return faults.Wrap(faults.ErrAdmission, "unlock", "resolve", fmt.Sprintf("no share named %q (known shares: %s)", name, known), nil)
				}
				marker := remote.Join(remote.Clean(share.Path), lock.MarkerName)
				locked, err := locks.IsLocked(cmd.Context(), marker)
				if err != nil {
					return err
				}
				if !locked {
					fmt.Fprintf(out, "%s: not locked\n", name)
					continue
				}
				if err := locks.Clear(cmd.Context(), marker); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: unlocked\n", name)
			}
			return nil
		},
	}
}
