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

// Package delivery forwards queued records upstream during a relay cycle
// and rebuilds the error queue from the records that could not be
// delivered.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/idgen"
	"github.com/cardinalhq/fieldrelay/internal/logctx"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
	"github.com/cardinalhq/fieldrelay/internal/transport"
)

type Config struct {
	SuccessQueue string
	ErrorQueue   string
	Endpoints    []Endpoint
}

// Result counts what happened to the records found at the start of a run.
type Result struct {
	// Attempted is the number of records posted upstream.
	Attempted int
	Delivered int
	// Requeued is the length of the rebuilt error queue.
	Requeued int
	// Missing counts indices below the counter with no record behind them.
	Missing int
	// Corrupt counts records that failed verification and were dropped.
	Corrupt int
}

type Pipeline struct {
	store     *recordstore.Store
	client    Poster
	indicator device.Indicator
	cfg       Config
	logger    *slog.Logger
}

func New(store *recordstore.Store, client Poster, indicator device.Indicator, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		client:    client,
		indicator: indicator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run drains the error queue and then the success queue. Each record is
// posted to every endpoint in order. Delivered records are deleted from
// their source right away; the rest are appended to a fresh error queue
// numbered from zero. Both queues are replaced in one commit at the end, so
// after Run the success queue is empty and the error queue holds exactly
// this run's failures.
//
// Per-record failures never stop the run. A storage failure or context
// cancellation rolls back the new error queue and leaves every undelivered
// record where it was.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	logger := logctx.Component(ctx, p.logger, "delivery")
	var res Result

	tx := p.store.Begin()
	defer func() { _ = tx.Rollback() }()
	if err := tx.Reset(p.cfg.ErrorQueue); err != nil {
		return res, err
	}

	for _, queue := range []string{p.cfg.ErrorQueue, p.cfg.SuccessQueue} {
		if err := p.drain(ctx, logger, tx, queue, &res); err != nil {
			return res, err
		}
	}

	if err := tx.Reset(p.cfg.SuccessQueue); err != nil {
		return res, err
	}
	res.Requeued = tx.Len(p.cfg.ErrorQueue)
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit requeued records: %w", err)
	}

	recordResult(ctx, "delivered", res.Delivered)
	recordResult(ctx, "requeued", res.Requeued)
	recordResult(ctx, "missing", res.Missing)
	recordResult(ctx, "corrupt", res.Corrupt)
	logger.InfoContext(ctx, "Delivery complete",
		slog.Int("attempted", res.Attempted),
		slog.Int("delivered", res.Delivered),
		slog.Int("requeued", res.Requeued),
		slog.Int("missing", res.Missing),
		slog.Int("corrupt", res.Corrupt))
	return res, nil
}

func (p *Pipeline) drain(ctx context.Context, logger *slog.Logger, tx *recordstore.Txn, queue string, res *Result) error {
	count := p.store.GetCounter(queue)
	if count > 0 {
		logger.InfoContext(ctx, "Draining queue", slog.String("queue", queue), slog.Int("records", count))
	}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.store.Exists(queue, i) {
			res.Missing++
			continue
		}
		rec, err := p.store.ReadRecord(queue, i)
		if errors.Is(err, recordstore.ErrNotFound) {
			res.Missing++
			continue
		}
		if errors.Is(err, recordstore.ErrCorrupt) {
			res.Corrupt++
			logger.ErrorContext(ctx, "Dropping corrupt record",
				slog.String("queue", queue),
				slog.Int("index", i),
				slog.Any("error", err))
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s/%d: %w", queue, i, err)
		}

		res.Attempted++
		if rec.Key == "" {
			rec.Key = idgen.RecordKey(rec.Data)
		}
		if p.deliver(ctx, logger, queue, i, rec) {
			res.Delivered++
			if err := p.store.Delete(queue, i); err != nil && !errors.Is(err, recordstore.ErrNotFound) {
				// The commit drops the old generation anyway.
				logger.WarnContext(ctx, "Failed to delete delivered record",
					slog.String("queue", queue),
					slog.Int("index", i),
					slog.Any("error", err))
			}
			continue
		}
		if _, err := tx.AppendRecord(p.cfg.ErrorQueue, rec); err != nil {
			return fmt.Errorf("requeue %s/%d: %w", queue, i, err)
		}
	}
	return nil
}

func (p *Pipeline) deliver(ctx context.Context, logger *slog.Logger, queue string, index int, rec recordstore.Record) bool {
	attempts := make([]Attempt, 0, len(p.cfg.Endpoints))
	for _, e := range p.cfg.Endpoints {
		a := e.Post(ctx, p.client, rec.Data, rec.Key)
		attempts = append(attempts, a)
		recordAttempt(ctx, a.Endpoint, a.Outcome.String())
		if a.Outcome == transport.Delivered {
			p.indicator.Set(ctx, device.LEDWifi, device.Blue)
		} else {
			p.indicator.Set(ctx, device.LEDWifi, device.Red)
		}
		logger.DebugContext(ctx, "Posted record",
			slog.String("queue", queue),
			slog.Int("index", index),
			slog.String("endpoint", a.Endpoint),
			slog.String("outcome", a.Outcome.String()),
			slog.Int("status", a.Status),
			slog.Bool("required", e.Required))
	}
	ok := Accepted(p.cfg.Endpoints, attempts)
	if !ok {
		logger.WarnContext(ctx, "Record not delivered, requeueing",
			slog.String("queue", queue),
			slog.Int("index", index))
	}
	return ok
}
