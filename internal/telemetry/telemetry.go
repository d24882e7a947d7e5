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

// Package telemetry records one battery reading per cycle and ships the
// readings upstream opportunistically during relay cycles.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardinalhq/fieldrelay/internal/cbor"
	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/delivery"
	"github.com/cardinalhq/fieldrelay/internal/idgen"
	"github.com/cardinalhq/fieldrelay/internal/logctx"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
	"github.com/cardinalhq/fieldrelay/internal/transport"
)

var codec = cbor.MustNewConfig()

// Reading is one side-channel sample as stored in the telemetry queue.
type Reading struct {
	Time  time.Time `cbor:"1,keyasint" json:"time"`
	Volts float64   `cbor:"2,keyasint" json:"volts"`
	Cycle string    `cbor:"3,keyasint,omitempty" json:"cycle,omitempty"`
}

func EncodeReading(r Reading) ([]byte, error) {
	return codec.Marshal(r)
}

func DecodeReading(data []byte) (Reading, error) {
	var r Reading
	if err := codec.Unmarshal(data, &r); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	return r, nil
}

// Task appends a reading to the telemetry queue.
type Task struct {
	store   *recordstore.Store
	sampler device.Sampler
	queue   string
	now     func() time.Time
	logger  *slog.Logger
}

func NewTask(store *recordstore.Store, sampler device.Sampler, queue string, logger *slog.Logger) *Task {
	return &Task{store: store, sampler: sampler, queue: queue, now: time.Now, logger: logger}
}

// Sample reads the sampler once and commits the reading on its own, so it
// survives whatever the rest of the cycle does.
func (t *Task) Sample(ctx context.Context, cycle string) (Reading, error) {
	volts, err := t.sampler.Sample(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("sample: %w", err)
	}
	r := Reading{Time: t.now().UTC(), Volts: volts, Cycle: cycle}
	data, err := EncodeReading(r)
	if err != nil {
		return Reading{}, err
	}
	if _, err := t.store.Queue(t.queue).Append(data); err != nil {
		return Reading{}, fmt.Errorf("store reading: %w", err)
	}
	logctx.Component(ctx, t.logger, "telemetry").DebugContext(ctx, "Recorded reading",
		slog.Float64("volts", volts))
	return r, nil
}

// ShipResult summarizes one Ship call.
type ShipResult struct {
	Shipped int
	Pending int
	Dropped int
}

// Shipper posts queued readings as JSON.
type Shipper struct {
	store    *recordstore.Store
	client   delivery.Poster
	queue    string
	endpoint delivery.Endpoint
	logger   *slog.Logger
}

func NewShipper(store *recordstore.Store, client delivery.Poster, queue string, endpoint delivery.Endpoint, logger *slog.Logger) *Shipper {
	if endpoint.Headers == nil {
		endpoint.Headers = map[string]string{"Content-Type": "application/json"}
	}
	if endpoint.Name == "" {
		endpoint.Name = "telemetry"
	}
	return &Shipper{store: store, client: client, queue: queue, endpoint: endpoint, logger: logger}
}

// Ship posts readings in queue order and stops at the first one the
// endpoint does not accept. The readings left over are committed back as a
// dense queue starting at zero. Unreadable readings are dropped.
func (s *Shipper) Ship(ctx context.Context) (ShipResult, error) {
	logger := logctx.Component(ctx, s.logger, "telemetry")
	var res ShipResult
	count := s.store.GetCounter(s.queue)
	if count == 0 {
		return res, nil
	}

	tx := s.store.Begin()
	defer func() { _ = tx.Rollback() }()
	if err := tx.Reset(s.queue); err != nil {
		return res, err
	}

	stopped := false
	for i := 0; i < count; i++ {
		data, err := s.store.Read(s.queue, i)
		if errors.Is(err, recordstore.ErrNotFound) {
			continue
		}
		if err != nil && !errors.Is(err, recordstore.ErrCorrupt) {
			return res, fmt.Errorf("read reading %d: %w", i, err)
		}
		var r Reading
		if err == nil {
			r, err = DecodeReading(data)
		}
		if err != nil {
			res.Dropped++
			logger.WarnContext(ctx, "Dropping unreadable reading", slog.Int("index", i), slog.Any("error", err))
			continue
		}

		if !stopped && ctx.Err() == nil {
			body, err := json.Marshal(r)
			if err != nil {
				return res, fmt.Errorf("encode reading %d: %w", i, err)
			}
			a := s.endpoint.Post(ctx, s.client, body, idgen.RecordKey(data))
			if a.Outcome == transport.Delivered {
				res.Shipped++
				continue
			}
			stopped = true
			logger.InfoContext(ctx, "Telemetry endpoint unavailable, keeping readings",
				slog.String("outcome", a.Outcome.String()),
				slog.Int("status", a.Status))
		}
		if _, err := tx.Append(s.queue, data); err != nil {
			return res, fmt.Errorf("requeue reading %d: %w", i, err)
		}
	}

	res.Pending = tx.Len(s.queue)
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit telemetry queue: %w", err)
	}
	logger.InfoContext(ctx, "Telemetry shipped",
		slog.Int("shipped", res.Shipped),
		slog.Int("pending", res.Pending))
	return res, nil
}
