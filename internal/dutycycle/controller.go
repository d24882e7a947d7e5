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

// Package dutycycle runs one wake cycle of the logger: mount storage, find
// a known network, run the role it selects, unmount and suspend. Nothing
// survives from one cycle to the next except the record store.
package dutycycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/fieldrelay/internal/delivery"
	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/idgen"
	"github.com/cardinalhq/fieldrelay/internal/ingest"
	"github.com/cardinalhq/fieldrelay/internal/logctx"
	"github.com/cardinalhq/fieldrelay/internal/netselect"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
	"github.com/cardinalhq/fieldrelay/internal/telemetry"
)

// ErrStorageUnavailable means the record storage could not be mounted or
// opened, which ends the cycle.
var ErrStorageUnavailable = errors.New("storage unavailable")

// NetworkSelector picks the network, and with it the role, for a cycle.
type NetworkSelector interface {
	Select(ctx context.Context) (netselect.Selection, error)
}

// Client is the HTTP collaborator used by both roles.
type Client interface {
	ingest.Getter
	delivery.Poster
}

// Config wires the collaborators of a cycle.
type Config struct {
	StoreRoot string

	Mounter   device.Mounter
	Selector  NetworkSelector
	Indicator device.Indicator
	Sampler   device.Sampler
	Suspender device.Suspender
	Client    Client

	Ingest   ingest.Config
	Delivery delivery.Config

	TelemetryQueue string
	// TelemetryEndpoint is where readings are shipped in relay cycles.
	// Readings only accumulate when it is nil.
	TelemetryEndpoint *delivery.Endpoint

	Interval time.Duration
	Logger   *slog.Logger
}

// Report describes what a cycle did.
type Report struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	States   []State
	Role     netselect.Role
	// Aborted is set when the cycle skipped its role.
	Aborted bool

	Network   *netselect.Selection
	Reading   *telemetry.Reading
	Ingest    *ingest.Result
	Delivery  *delivery.Result
	Telemetry *telemetry.ShipResult
	// Queues holds the counters of the configured queues at the end of
	// the role.
	Queues map[string]int
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}

type Controller struct {
	cfg    Config
	ids    *idgen.CycleIDGenerator
	now    func() time.Time
	logger *slog.Logger
}

func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		ids:    idgen.NewCycleIDGenerator(),
		now:    time.Now,
		logger: logger,
	}
}

// RunCycle runs one cycle through to the suspend request. The returned
// error wraps ErrStorageUnavailable or netselect.ErrNetworkUnavailable when
// the cycle aborted; pipeline, unmount and suspend failures are collected
// alongside. A non-nil error never means the cycle skipped suspending.
func (c *Controller) RunCycle(ctx context.Context) (Report, error) {
	start := c.now()
	rep := Report{ID: c.ids.Make(start), Started: start}
	ctx = logctx.WithLogger(ctx, c.logger.With(slog.String("cycle", rep.ID)))
	logger := logctx.Component(ctx, nil, "dutycycle")
	ind := c.cfg.Indicator

	var errs *multierror.Error
	result := "ok"

	rep.enter(StateInit)
	for _, led := range []device.LED{device.LEDBattery, device.LEDWifi, device.LEDCheck} {
		ind.Set(ctx, led, device.White)
	}
	logger.InfoContext(ctx, "Cycle starting")

	rep.enter(StateMountStorage)
	store, mounted, err := c.mount(ctx)
	if err != nil {
		errs = multierror.Append(errs, err)
		c.abort(ctx, logger, &rep, err)
		result = "aborted"
	}

	if store != nil {
		if err := c.sample(ctx, logger, store, &rep); err != nil {
			errs = multierror.Append(errs, err)
		}

		rep.enter(StateIdentifyNetwork)
		sel, err := c.cfg.Selector.Select(ctx)
		if err != nil {
			errs = multierror.Append(errs, err)
			c.abort(ctx, logger, &rep, err)
			result = "aborted"
		} else {
			rep.Network = &sel
			rep.Role = sel.Profile.Role
			if err := c.runRole(ctx, store, &rep); err != nil {
				errs = multierror.Append(errs, err)
				result = "partial"
			}
			rep.Queues = c.depths(ctx, store)
		}
	}

	if mounted {
		rep.enter(StateUnmountStorage)
		if err := c.cfg.Mounter.Unmount(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("unmount: %w", err))
			if result == "ok" {
				result = "partial"
			}
		}
	}

	switch result {
	case "ok":
		ind.Set(ctx, device.LEDCheck, device.Green)
	case "partial":
		ind.Set(ctx, device.LEDCheck, device.Yellow)
	}

	rep.Duration = c.now().Sub(start)
	recordCycle(ctx, rep.Role.String(), result, rep.Duration)
	logger.InfoContext(ctx, "Cycle finished",
		slog.String("role", rep.Role.String()),
		slog.String("result", result),
		slog.Duration("duration", rep.Duration))

	rep.enter(StateSuspend)
	device.AllOff(ctx, ind)
	if err := c.cfg.Suspender.Suspend(ctx, c.cfg.Interval); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("suspend: %w", err))
	}
	return rep, errs.ErrorOrNil()
}

// mount makes storage available and opens the store on it. mounted reports
// whether Unmount must be called.
func (c *Controller) mount(ctx context.Context) (store *recordstore.Store, mounted bool, err error) {
	if err := c.cfg.Mounter.Mount(ctx); err != nil {
		return nil, false, fmt.Errorf("%w: mount: %w", ErrStorageUnavailable, err)
	}
	store, err = recordstore.Open(c.cfg.StoreRoot, recordstore.WithLogger(logctx.FromContext(ctx)))
	if err != nil {
		return nil, true, fmt.Errorf("%w: open: %w", ErrStorageUnavailable, err)
	}
	return store, true, nil
}

func (c *Controller) abort(ctx context.Context, logger *slog.Logger, rep *Report, err error) {
	rep.enter(StateAbort)
	rep.Aborted = true
	c.cfg.Indicator.Set(ctx, device.LEDCheck, device.Red)
	logger.ErrorContext(ctx, "Cycle aborted", slog.Any("error", err))
}

// sample records the battery reading. It runs before the network is chosen
// so that every cycle that reaches storage leaves a reading behind.
func (c *Controller) sample(ctx context.Context, logger *slog.Logger, store *recordstore.Store, rep *Report) error {
	if c.cfg.Sampler == nil || c.cfg.TelemetryQueue == "" {
		return nil
	}
	r, err := telemetry.NewTask(store, c.cfg.Sampler, c.cfg.TelemetryQueue, nil).Sample(ctx, rep.ID)
	if err != nil {
		c.cfg.Indicator.Set(ctx, device.LEDBattery, device.Red)
		logger.WarnContext(ctx, "Telemetry sample failed", slog.Any("error", err))
		return fmt.Errorf("telemetry: %w", err)
	}
	c.cfg.Indicator.Set(ctx, device.LEDBattery, device.Green)
	rep.Reading = &r
	return nil
}

func (c *Controller) runRole(ctx context.Context, store *recordstore.Store, rep *Report) error {
	ctx = logctx.With(ctx, slog.String("role", rep.Role.String()))
	switch rep.Role {
	case netselect.Collector:
		rep.enter(StateRunCollector)
		icfg := c.cfg.Ingest
		icfg.Cycle = rep.ID
		res, err := ingest.New(store, c.cfg.Client, c.cfg.Indicator, icfg, nil).Run(ctx)
		rep.Ingest = &res
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		return nil

	case netselect.Relay:
		rep.enter(StateRunRelay)
		var errs *multierror.Error
		res, err := delivery.New(store, c.cfg.Client, c.cfg.Indicator, c.cfg.Delivery, nil).Run(ctx)
		rep.Delivery = &res
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("delivery: %w", err))
		}
		if c.cfg.TelemetryEndpoint != nil && c.cfg.TelemetryQueue != "" {
			sh := telemetry.NewShipper(store, c.cfg.Client, c.cfg.TelemetryQueue, *c.cfg.TelemetryEndpoint, nil)
			tres, err := sh.Ship(ctx)
			rep.Telemetry = &tres
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("telemetry shipping: %w", err))
			}
		}
		return errs.ErrorOrNil()

	default:
		return fmt.Errorf("network %s has no role", rep.Network.Profile.Identity)
	}
}

func (c *Controller) depths(ctx context.Context, store *recordstore.Store) map[string]int {
	out := map[string]int{}
	for _, q := range []string{c.cfg.Ingest.Queue, c.cfg.Delivery.SuccessQueue, c.cfg.Delivery.ErrorQueue, c.cfg.TelemetryQueue} {
		if q == "" {
			continue
		}
		if _, ok := out[q]; ok {
			continue
		}
		out[q] = store.GetCounter(q)
		recordQueueDepth(ctx, q, out[q])
	}
	return out
}
