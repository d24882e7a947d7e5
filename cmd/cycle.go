// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/fieldrelay/config"
	"github.com/cardinalhq/fieldrelay/internal/netselect"
)

func init() {
	var loop bool
	var maxCycles int

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one duty cycle, then suspend",
		Long: `Mount storage, pick the role from the visible network, collect or relay,
unmount and suspend for cycle.interval. With --loop the process keeps
cycling; every cycle starts from nothing but the record store.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			servicename := "fieldrelay"
			doneCtx, doneFx, err := setupTelemetry(servicename)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runCycles(doneCtx, cfg, loop, maxCycles)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep running cycles in this process")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "with --loop, stop after this many cycles (0 means no limit)")

	rootCmd.AddCommand(cmd)
}

func runCycles(ctx context.Context, cfg *config.Config, loop bool, maxCycles int) error {
	for n := 1; ; n++ {
		controller, err := newController(cfg, slog.Default())
		if err != nil {
			return err
		}
		rep, err := controller.RunCycle(ctx)
		if err != nil {
			slog.Warn("Cycle ended with errors",
				slog.String("cycle", rep.ID),
				slog.Bool("aborted", rep.Aborted),
				slog.Any("error", err))
		}

		if !loop {
			if errors.Is(err, netselect.ErrNetworkUnavailable) {
				// Out of range of both networks is a normal cycle.
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			slog.Info("Stopping after signal", slog.Int("cycles", n))
			return nil
		}
		if maxCycles > 0 && n >= maxCycles {
			return nil
		}
	}
}
