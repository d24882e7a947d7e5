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

package dutycycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fieldrelay/internal/delivery"
	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/ingest"
	"github.com/cardinalhq/fieldrelay/internal/netselect"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
	"github.com/cardinalhq/fieldrelay/internal/transport"
)

type fakeMounter struct {
	mountErr   error
	unmountErr error
	mounts     int
	unmounts   int
}

func (m *fakeMounter) Mount(context.Context) error {
	m.mounts++
	return m.mountErr
}

func (m *fakeMounter) Unmount(context.Context) error {
	m.unmounts++
	return m.unmountErr
}

type fakeSuspender struct {
	calls []time.Duration
}

func (s *fakeSuspender) Suspend(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

// upstream plays both the gateway and the cloud side.
type upstream struct {
	mu        sync.Mutex
	pending   []string
	served    int
	cloudFail map[string]bool
	cloud     []string
	telemetry int
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /salud/size", func(w http.ResponseWriter, _ *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		_, _ = fmt.Fprintf(w, "%d\n", len(u.pending))
	})
	mux.HandleFunc("GET /salud/datos", func(w http.ResponseWriter, _ *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		_, _ = io.WriteString(w, u.pending[u.served])
		u.served++
	})
	mux.HandleFunc("POST /relay", func(http.ResponseWriter, *http.Request) {})
	mux.HandleFunc("POST /cloud", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		defer u.mu.Unlock()
		u.cloud = append(u.cloud, string(b))
		if u.cloudFail[string(b)] {
			w.WriteHeader(http.StatusBadGateway)
		}
	})
	mux.HandleFunc("POST /telemetry", func(http.ResponseWriter, *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.telemetry++
	})
	return mux
}

type upstreamStats struct {
	served    int
	cloud     []string
	telemetry int
}

func (u *upstream) stats() upstreamStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return upstreamStats{served: u.served, cloud: append([]string(nil), u.cloud...), telemetry: u.telemetry}
}

func (u *upstream) rewind() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.served = 0
}

type rig struct {
	root      string
	up        *upstream
	mounter   *fakeMounter
	suspender *fakeSuspender
	indicator *device.RecordingIndicator
	radio     *netselect.StaticRadio
}

func newRig(t *testing.T, visible ...string) (*rig, *Controller) {
	t.Helper()
	r := &rig{
		root:      t.TempDir(),
		up:        &upstream{cloudFail: map[string]bool{}},
		mounter:   &fakeMounter{},
		suspender: &fakeSuspender{},
		indicator: &device.RecordingIndicator{},
		radio:     &netselect.StaticRadio{},
	}
	for _, id := range visible {
		r.radio.Visible = append(r.radio.Visible, netselect.Network{Identity: id, Signal: -40})
	}
	srv := httptest.NewServer(r.up.handler())
	t.Cleanup(srv.Close)

	profiles := []netselect.Profile{
		{Identity: "ESP-AP", Role: netselect.Collector},
		{Identity: "WIFILOCAL", Role: netselect.Relay},
	}
	c := New(Config{
		StoreRoot: r.root,
		Mounter:   r.mounter,
		Selector:  netselect.NewSelector(r.radio, profiles),
		Indicator: r.indicator,
		Sampler:   device.StaticSampler{Volts: 3.8},
		Suspender: r.suspender,
		Client:    transport.NewClient(),
		Ingest: ingest.Config{
			BaseURL:  srv.URL,
			SizePath: "/salud/size",
			DataPath: "/salud/datos",
			Timeout:  time.Second,
			Queue:    "salud",
		},
		Delivery: delivery.Config{
			SuccessQueue: "salud",
			ErrorQueue:   "e_salud",
			Endpoints: []delivery.Endpoint{
				{Name: "relay", URL: srv.URL + "/relay", Timeout: time.Second},
				{Name: "cloud", URL: srv.URL + "/cloud", Required: true, Timeout: time.Second},
			},
		},
		TelemetryQueue:    "bateria",
		TelemetryEndpoint: &delivery.Endpoint{URL: srv.URL + "/telemetry", Timeout: time.Second},
		Interval:          10 * time.Minute,
	})
	return r, c
}

func (r *rig) store(t *testing.T) *recordstore.Store {
	t.Helper()
	s, err := recordstore.Open(r.root)
	require.NoError(t, err)
	return s
}

func (r *rig) assertSuspendedDark(t *testing.T) {
	t.Helper()
	assert.Equal(t, []time.Duration{10 * time.Minute}, r.suspender.calls)
	for _, led := range []device.LED{device.LEDBattery, device.LEDWifi, device.LEDCheck} {
		c, ok := r.indicator.Last(led)
		assert.True(t, ok)
		assert.Equal(t, device.Off, c, led.String())
	}
}

func TestCollectorCycle(t *testing.T) {
	r, c := newRig(t, "Neighbor", "ESP-AP")
	r.up.pending = []string{"p0", "p1", "p2"}

	rep, err := c.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []State{StateInit, StateMountStorage, StateIdentifyNetwork, StateRunCollector, StateUnmountStorage, StateSuspend}, rep.States)
	assert.Equal(t, netselect.Collector, rep.Role)
	require.NotNil(t, rep.Ingest)
	assert.Equal(t, 3, rep.Ingest.Ingested)
	assert.Nil(t, rep.Delivery)
	assert.Equal(t, 3, rep.Queues["salud"])
	assert.Equal(t, 1, rep.Queues["bateria"])
	assert.Equal(t, 1, r.mounter.unmounts)
	assert.Empty(t, r.up.stats().cloud)
	r.assertSuspendedDark(t)

	s := r.store(t)
	assert.Equal(t, 3, s.GetCounter("salud"))
	data, err := s.Read("salud", 2)
	require.NoError(t, err)
	assert.Equal(t, "p2", string(data))
}

func TestRelayCycle(t *testing.T) {
	r, c := newRig(t, "WIFILOCAL")
	seed := r.store(t).Begin()
	for _, v := range []string{"a", "b", "c"} {
		_, err := seed.Append("salud", []byte(v))
		require.NoError(t, err)
	}
	require.NoError(t, seed.Commit())
	r.up.cloudFail["b"] = true

	rep, err := c.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []State{StateInit, StateMountStorage, StateIdentifyNetwork, StateRunRelay, StateUnmountStorage, StateSuspend}, rep.States)
	require.NotNil(t, rep.Delivery)
	assert.Equal(t, 2, rep.Delivery.Delivered)
	require.NotNil(t, rep.Telemetry)
	assert.Equal(t, 1, rep.Telemetry.Shipped)
	assert.Equal(t, 1, r.up.stats().telemetry)
	assert.Zero(t, r.up.stats().served)
	r.assertSuspendedDark(t)

	s := r.store(t)
	assert.Equal(t, 0, s.GetCounter("salud"))
	assert.Equal(t, 1, s.GetCounter("e_salud"))
	data, err := s.Read("e_salud", 0)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.Equal(t, 0, s.GetCounter("bateria"))
}

func TestRelayCycleEmptyQueues(t *testing.T) {
	r, c := newRig(t, "WIFILOCAL")
	c.cfg.TelemetryEndpoint = nil

	rep, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, delivery.Result{}, *rep.Delivery)
	assert.Empty(t, r.up.stats().cloud)
	assert.Equal(t, 0, rep.Queues["salud"])
	assert.Equal(t, 0, rep.Queues["e_salud"])
	assert.Equal(t, 1, rep.Queues["bateria"])
}

func TestMountFailureAborts(t *testing.T) {
	r, c := newRig(t, "ESP-AP")
	r.mounter.mountErr = errors.New("no card")
	r.up.pending = []string{"p0"}

	rep, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.True(t, rep.Aborted)
	assert.Equal(t, []State{StateInit, StateMountStorage, StateAbort, StateSuspend}, rep.States)
	assert.Zero(t, r.mounter.unmounts)
	assert.Zero(t, r.radio.Connects("ESP-AP"))
	assert.Nil(t, rep.Reading)
	assert.Contains(t, r.indicator.Changes(), device.LEDChange{LED: device.LEDCheck, Color: device.Red})
	r.assertSuspendedDark(t)
}

func TestUnmatchedNetworkAborts(t *testing.T) {
	r, c := newRig(t, "Neighbor")

	rep, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, netselect.ErrNetworkUnavailable)
	assert.True(t, rep.Aborted)
	assert.Equal(t, []State{StateInit, StateMountStorage, StateIdentifyNetwork, StateAbort, StateUnmountStorage, StateSuspend}, rep.States)
	assert.Equal(t, 1, r.mounter.unmounts)
	require.NotNil(t, rep.Reading)
	assert.Equal(t, 3.8, rep.Reading.Volts)
	assert.Equal(t, rep.ID, rep.Reading.Cycle)
	assert.Contains(t, r.indicator.Changes(), device.LEDChange{LED: device.LEDCheck, Color: device.Red})
	r.assertSuspendedDark(t)

	assert.Equal(t, 1, r.store(t).GetCounter("bateria"))
}

func TestUnmountFailureIsReported(t *testing.T) {
	r, c := newRig(t, "ESP-AP")
	r.mounter.unmountErr = errors.New("busy")

	rep, err := c.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmount")
	assert.False(t, rep.Aborted)
	assert.Contains(t, r.indicator.Changes(), device.LEDChange{LED: device.LEDCheck, Color: device.Yellow})
	r.assertSuspendedDark(t)
}

func TestCyclesShareOnlyTheStore(t *testing.T) {
	r, c := newRig(t, "ESP-AP")
	r.up.pending = []string{"x", "y"}

	first, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	r.up.rewind()
	second, err := c.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 4, second.Queues["salud"])
	assert.Equal(t, 2, second.Queues["bateria"])
	assert.Empty(t, r.store(t).Check("salud"))
}
