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

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fieldrelay/internal/delivery"
	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
	"github.com/cardinalhq/fieldrelay/internal/transport"
)

func openStore(t *testing.T) *recordstore.Store {
	t.Helper()
	store, err := recordstore.Open(t.TempDir())
	require.NoError(t, err)
	return store
}

func readings(t *testing.T, store *recordstore.Store) []Reading {
	t.Helper()
	var out []Reading
	for i := 0; i < store.GetCounter("bateria"); i++ {
		data, err := store.Read("bateria", i)
		require.NoError(t, err)
		r, err := DecodeReading(data)
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestSampleAppends(t *testing.T) {
	store := openStore(t)
	task := NewTask(store, device.StaticSampler{Volts: 3.91}, "bateria", nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task.now = func() time.Time { return fixed }

	_, err := task.Sample(context.Background(), "c1")
	require.NoError(t, err)
	_, err = task.Sample(context.Background(), "c2")
	require.NoError(t, err)

	got := readings(t, store)
	require.Len(t, got, 2)
	assert.Equal(t, 3.91, got[0].Volts)
	assert.Equal(t, "c2", got[1].Cycle)
	assert.True(t, fixed.Equal(got[0].Time))
}

type brokenSampler struct{}

func (brokenSampler) Sample(context.Context) (float64, error) {
	return 0, errors.New("adc busy")
}

func TestSampleError(t *testing.T) {
	store := openStore(t)
	_, err := NewTask(store, brokenSampler{}, "bateria", nil).Sample(context.Background(), "c")
	assert.Error(t, err)
	assert.False(t, store.QueueExists("bateria"))
}

func seedReadings(t *testing.T, store *recordstore.Store, volts ...float64) {
	t.Helper()
	task := NewTask(store, nil, "bateria", nil)
	for _, v := range volts {
		task.sampler = device.StaticSampler{Volts: v}
		_, err := task.Sample(context.Background(), "")
		require.NoError(t, err)
	}
}

func TestShipAll(t *testing.T) {
	var mu sync.Mutex
	var bodies []Reading
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get(delivery.IdempotencyHeader))
		b, _ := io.ReadAll(r.Body)
		var rd Reading
		assert.NoError(t, json.Unmarshal(b, &rd))
		mu.Lock()
		bodies = append(bodies, rd)
		mu.Unlock()
	}))
	defer srv.Close()

	store := openStore(t)
	seedReadings(t, store, 3.7, 3.6)
	sh := NewShipper(store, transport.NewClient(), "bateria", delivery.Endpoint{URL: srv.URL}, nil)

	res, err := sh.Ship(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ShipResult{Shipped: 2}, res)
	assert.Zero(t, store.GetCounter("bateria"))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, 3.7, bodies[0].Volts)
}

func TestShipStopsAtFirstFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	store := openStore(t)
	seedReadings(t, store, 1, 2, 3, 4)
	sh := NewShipper(store, transport.NewClient(), "bateria", delivery.Endpoint{URL: srv.URL}, nil)

	res, err := sh.Ship(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ShipResult{Shipped: 1, Pending: 3}, res)
	assert.EqualValues(t, 2, calls.Load())

	left := readings(t, store)
	require.Len(t, left, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{left[0].Volts, left[1].Volts, left[2].Volts})
	assert.Empty(t, store.Check("bateria"))
}

func TestShipEmpty(t *testing.T) {
	store := openStore(t)
	sh := NewShipper(store, transport.NewClient(), "bateria", delivery.Endpoint{URL: "http://127.0.0.1:1"}, nil)
	res, err := sh.Ship(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ShipResult{}, res)
}

func TestShipDropsUndecodable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	store := openStore(t)
	_, err := store.Queue("bateria").Append([]byte{0xff, 0x00})
	require.NoError(t, err)
	seedReadings(t, store, 3.3)

	res, err := NewShipper(store, transport.NewClient(), "bateria", delivery.Endpoint{URL: srv.URL}, nil).Ship(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ShipResult{Shipped: 1, Dropped: 1}, res)
}
