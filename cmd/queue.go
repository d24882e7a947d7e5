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
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/fieldrelay/config"
	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and repair the record queues",
}

func init() {
	queueCmd.AddCommand(&cobra.Command{
		Use:   "stat",
		Short: "Print counters and blob counts for every queue",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withStore(c.Context(), func(cfg *config.Config, store *recordstore.Store) error {
				return writeStats(c.OutOrStdout(), store, knownQueues(cfg, store))
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify every counted record is present",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withStore(c.Context(), func(cfg *config.Config, store *recordstore.Store) error {
				return checkQueues(c.OutOrStdout(), store, knownQueues(cfg, store))
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "Remove uncommitted records left by an interrupted cycle",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withStore(c.Context(), func(_ *config.Config, store *recordstore.Store) error {
				report, err := store.Recover()
				if err != nil {
					return err
				}
				return yaml.NewEncoder(c.OutOrStdout()).Encode(report)
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "dump QUEUE INDEX",
		Short: "Write one record's payload to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			return withStore(c.Context(), func(_ *config.Config, store *recordstore.Store) error {
				data, err := store.Read(args[0], index)
				if err != nil {
					return err
				}
				_, err = c.OutOrStdout().Write(data)
				return err
			})
		},
	})

	rootCmd.AddCommand(queueCmd)
}

// withStore mounts storage, opens the store without recovering it and runs
// fn against it.
func withStore(ctx context.Context, fn func(*config.Config, *recordstore.Store) error) (err error) {
	setupCLILogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	mounter := buildMounter(cfg.Storage)
	if err := mounter.Mount(ctx); err != nil {
		return fmt.Errorf("mount storage: %w", err)
	}
	defer func() {
		if uerr := mounter.Unmount(ctx); uerr != nil && err == nil {
			err = fmt.Errorf("unmount storage: %w", uerr)
		}
	}()

	store, err := recordstore.Open(cfg.Storage.Root, recordstore.WithoutRecovery())
	if err != nil {
		return err
	}
	return fn(cfg, store)
}

// knownQueues is the configured queues followed by any other queue the
// store holds.
func knownQueues(cfg *config.Config, store *recordstore.Store) []string {
	queues := []string{cfg.Queues.Success, cfg.Queues.Error, cfg.Queues.Telemetry}
	seen := map[string]bool{}
	for _, q := range queues {
		seen[q] = true
	}
	for _, q := range store.Queues() {
		if !seen[q] {
			queues = append(queues, q)
		}
	}
	return queues
}

type storeStat struct {
	Root    string                  `yaml:"root"`
	Storage *device.StorageUsage    `yaml:"storage,omitempty"`
	Queues  []recordstore.QueueStat `yaml:"queues"`
}

func writeStats(w io.Writer, store *recordstore.Store, queues []string) error {
	out := storeStat{Root: store.Root()}
	if usage, err := device.Usage(store.Root()); err == nil {
		out.Storage = &usage
	} else {
		slog.Warn("Cannot read storage usage", slog.Any("error", err))
	}
	for _, q := range queues {
		st, err := store.Stat(q)
		if err != nil {
			return err
		}
		out.Queues = append(out.Queues, st)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func checkQueues(w io.Writer, store *recordstore.Store, queues []string) error {
	bad := 0
	for _, q := range queues {
		missing := store.Check(q)
		if len(missing) == 0 {
			_, _ = fmt.Fprintf(w, "%s: ok (%d records)\n", q, store.GetCounter(q))
			continue
		}
		bad++
		_, _ = fmt.Fprintf(w, "%s: %d of %d records missing: %v\n", q, len(missing), store.GetCounter(q), missing)
	}
	if bad > 0 {
		return fmt.Errorf("%d queue(s) have missing records", bad)
	}
	return nil
}
