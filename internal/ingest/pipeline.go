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

// Package ingest pulls readings from the local gateway into the success
// queue during a collector cycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/idgen"
	"github.com/cardinalhq/fieldrelay/internal/logctx"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
	"github.com/cardinalhq/fieldrelay/internal/transport"
)

var (
	// ErrGateway means the gateway did not answer a request with 2xx.
	ErrGateway = errors.New("gateway request failed")
	// ErrBadSize means the size endpoint answered with something that is
	// not a non-negative integer.
	ErrBadSize = errors.New("gateway returned an invalid pending size")
	// ErrIncomplete means fewer records were committed than announced.
	ErrIncomplete = errors.New("ingestion incomplete")
)

// Getter is the part of the HTTP collaborator ingestion needs.
type Getter interface {
	Get(ctx context.Context, url string, timeout time.Duration) (transport.Response, error)
}

// Config locates the gateway endpoints.
type Config struct {
	BaseURL  string
	SizePath string
	DataPath string
	// IndexParam, when set, names a query parameter on the data request
	// carrying the zero-based position of the record within this pull
	// (0..k-1), not its index in the success queue. The gateway keeps its
	// own cursor and knows nothing of the logger's queue numbering.
	IndexParam string
	Timeout    time.Duration
	// Queue is the success queue records are appended to.
	Queue string
	// Cycle identifies the running cycle in record keys. A fresh ID is
	// used when it is empty.
	Cycle string
}

// Result summarizes one ingestion run.
type Result struct {
	// Announced is the pending count the gateway reported.
	Announced int
	// Ingested is how many records were committed.
	Ingested int
	// Counter is the success queue length after the run.
	Counter int
}

type Pipeline struct {
	store     *recordstore.Store
	client    Getter
	indicator device.Indicator
	cfg       Config
	logger    *slog.Logger
}

func New(store *recordstore.Store, client Getter, indicator device.Indicator, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Pipeline{
		store:     store,
		client:    client,
		indicator: indicator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run asks the gateway how many records are pending and pulls them one
// request at a time, appending each under the next index of the success
// queue. Records are committed together once the pull ends. When a data
// request fails the pull stops there and the records already pulled are
// committed; the rest stay on the gateway for the next cycle and the
// returned error wraps ErrIncomplete.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	logger := logctx.Component(ctx, p.logger, "ingest")
	start := p.store.GetCounter(p.cfg.Queue)
	res := Result{Counter: start}

	k, err := p.pendingSize(ctx)
	if err != nil {
		return res, err
	}
	res.Announced = k
	logger.InfoContext(ctx, "Gateway reports pending records",
		slog.Int("pending", k),
		slog.Int("counter", start))
	if k == 0 {
		return res, nil
	}

	cycle := p.cfg.Cycle
	if cycle == "" {
		cycle = idgen.NewCycleIDGenerator().Make(time.Now())
	}

	tx := p.store.Begin()
	defer func() { _ = tx.Rollback() }()

	var pullErr error
	for i := 0; i < k; i++ {
		if err := ctx.Err(); err != nil {
			pullErr = err
			break
		}
		body, err := p.fetch(ctx, i)
		if err != nil {
			pullErr = fmt.Errorf("record %d of %d: %w", i+1, k, err)
			break
		}
		rec := recordstore.Record{Data: body, Key: idgen.IngestKey(cycle, start+i, body)}
		if _, err := tx.AppendRecord(p.cfg.Queue, rec); err != nil {
			// Storage trouble is not something the next request will fix.
			pullErr = fmt.Errorf("store record %d: %w", start+i, err)
			break
		}
	}

	pulled := tx.Len(p.cfg.Queue) - start
	if pulled > 0 {
		if err := tx.Commit(); err != nil {
			return res, fmt.Errorf("commit %d records: %w", pulled, err)
		}
		recordsIngested.Add(ctx, int64(pulled))
	}
	res.Ingested = pulled
	res.Counter = start + pulled

	if pullErr != nil {
		logger.WarnContext(ctx, "Ingestion stopped early",
			slog.Int("ingested", pulled),
			slog.Int("announced", k),
			slog.Any("error", pullErr))
		return res, fmt.Errorf("%w: %w", ErrIncomplete, pullErr)
	}
	logger.InfoContext(ctx, "Ingestion complete",
		slog.Int("ingested", pulled),
		slog.Int("counter", res.Counter))
	return res, nil
}

func (p *Pipeline) pendingSize(ctx context.Context) (int, error) {
	body, err := p.get(ctx, "size", p.cfg.BaseURL+p.cfg.SizePath)
	if err != nil {
		return 0, fmt.Errorf("pending size: %w", err)
	}
	k, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil || k < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadSize, truncate(body, 32))
	}
	return k, nil
}

func (p *Pipeline) fetch(ctx context.Context, offset int) ([]byte, error) {
	u := p.cfg.BaseURL + p.cfg.DataPath
	if p.cfg.IndexParam != "" {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("data url: %w", err)
		}
		q := parsed.Query()
		q.Set(p.cfg.IndexParam, strconv.Itoa(offset))
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}
	return p.get(ctx, "data", u)
}

func (p *Pipeline) get(ctx context.Context, kind, u string) ([]byte, error) {
	resp, err := p.client.Get(ctx, u, p.cfg.Timeout)
	outcome := transport.Classify(resp, err)
	recordRequest(ctx, kind, outcome.String())
	switch outcome {
	case transport.Delivered:
		p.indicator.Set(ctx, device.LEDWifi, device.Green)
		return resp.Body, nil
	case transport.Rejected:
		p.indicator.Set(ctx, device.LEDWifi, device.Yellow)
		return nil, fmt.Errorf("%w: %s returned %d", ErrGateway, kind, resp.Status)
	default:
		p.indicator.Set(ctx, device.LEDWifi, device.Yellow)
		return nil, err
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
