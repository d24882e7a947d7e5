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

package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/idgen"
	"github.com/cardinalhq/fieldrelay/internal/recordstore"
	"github.com/cardinalhq/fieldrelay/internal/transport"
)

type fakeGateway struct {
	mu      sync.Mutex
	size    string
	records []string
	// failAt makes the n-th data request (zero-based) answer 503.
	failAt  int
	served  int
	offsets []string
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /salud/size", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, g.size)
	})
	mux.HandleFunc("GET /salud/datos", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		n := g.served
		g.served++
		g.offsets = append(g.offsets, r.URL.Query().Get("i"))
		if n == g.failAt {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, g.records[n%len(g.records)])
	})
	return mux
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.served
}

func (g *fakeGateway) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.offsets...)
}

func (g *fakeGateway) rewind() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.served = 0
}

func newPipeline(t *testing.T, gw *fakeGateway, indexParam string) (*Pipeline, *recordstore.Store, *device.RecordingIndicator) {
	t.Helper()
	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)

	store, err := recordstore.Open(t.TempDir())
	require.NoError(t, err)
	ind := &device.RecordingIndicator{}
	p := New(store, transport.NewClient(), ind, Config{
		BaseURL:    srv.URL,
		SizePath:   "/salud/size",
		DataPath:   "/salud/datos",
		IndexParam: indexParam,
		Timeout:    time.Second,
		Queue:      "salud",
	}, nil)
	return p, store, ind
}

func TestRunAppendsAnnouncedRecords(t *testing.T) {
	gw := &fakeGateway{size: "3\n", records: []string{"r0", "r1", "r2"}, failAt: -1}
	p, store, ind := newPipeline(t, gw, "")

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Announced: 3, Ingested: 3, Counter: 3}, res)
	assert.Equal(t, 3, store.GetCounter("salud"))
	for i := 0; i < 3; i++ {
		data, err := store.Read("salud", i)
		require.NoError(t, err)
		assert.Equal(t, "r"+strconv.Itoa(i), string(data))
	}
	c, _ := ind.Last(device.LEDWifi)
	assert.Equal(t, device.Green, c)
}

func TestRunIsAdditive(t *testing.T) {
	gw := &fakeGateway{size: "2", records: []string{"x", "y"}, failAt: -1}
	p, store, _ := newPipeline(t, gw, "")

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	gw.rewind()
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Counter)
	assert.Equal(t, 4, store.GetCounter("salud"))
	assert.Empty(t, store.Check("salud"))
	data, err := store.Read("salud", 3)
	require.NoError(t, err)
	assert.Equal(t, "y", string(data))
}

func TestRunZeroPending(t *testing.T) {
	gw := &fakeGateway{size: "0", failAt: -1}
	p, store, _ := newPipeline(t, gw, "")

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Ingested)
	assert.Zero(t, gw.count())
	assert.False(t, store.QueueExists("salud"))
}

func TestRunPartialFailureCommitsPrefix(t *testing.T) {
	gw := &fakeGateway{size: "4", records: []string{"a", "b", "c", "d"}, failAt: 2}
	p, store, ind := newPipeline(t, gw, "")

	res, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, Result{Announced: 4, Ingested: 2, Counter: 2}, res)
	assert.Equal(t, 2, store.GetCounter("salud"))
	assert.Equal(t, 3, gw.count())
	assert.Empty(t, store.Check("salud"))
	stat, err := store.Stat("salud")
	require.NoError(t, err)
	assert.Zero(t, stat.Uncounted)

	c, _ := ind.Last(device.LEDWifi)
	assert.Equal(t, device.Yellow, c)
}

func TestRunFirstRecordFails(t *testing.T) {
	gw := &fakeGateway{size: "2", records: []string{"a"}, failAt: 0}
	p, store, _ := newPipeline(t, gw, "")

	res, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Zero(t, res.Ingested)
	assert.False(t, store.QueueExists("salud"))
}

func TestRunIndexParam(t *testing.T) {
	gw := &fakeGateway{size: "3", records: []string{"a"}, failAt: -1}
	p, _, _ := newPipeline(t, gw, "i")

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, gw.seen())

	// The offset counts within the pull, not along the success queue.
	gw.rewind()
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Counter)
	assert.Equal(t, []string{"0", "1", "2", "0", "1", "2"}, gw.seen())
}

func TestRunBadSize(t *testing.T) {
	for _, size := range []string{"", "many", "-1", "1.5"} {
		t.Run(strconv.Quote(size), func(t *testing.T) {
			gw := &fakeGateway{size: size, failAt: -1}
			p, _, _ := newPipeline(t, gw, "")
			_, err := p.Run(context.Background())
			assert.ErrorIs(t, err, ErrBadSize)
			assert.Zero(t, gw.count())
		})
	}
}

func TestRunGatewayDown(t *testing.T) {
	store, err := recordstore.Open(t.TempDir())
	require.NoError(t, err)
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	ind := &device.RecordingIndicator{}
	p := New(store, transport.NewClient(), ind, Config{
		BaseURL: base, SizePath: "/salud/size", DataPath: "/salud/datos", Queue: "salud",
	}, nil)
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrTransport)
	c, _ := ind.Last(device.LEDWifi)
	assert.Equal(t, device.Yellow, c)
}

func TestRunKeysIdenticalRecordsApart(t *testing.T) {
	gw := &fakeGateway{size: "2", records: []string{"same"}, failAt: -1}
	p, store, _ := newPipeline(t, gw, "")

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	gw.rewind()
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	keys := map[string]bool{}
	for i := 0; i < store.GetCounter("salud"); i++ {
		rec, err := store.ReadRecord("salud", i)
		require.NoError(t, err)
		assert.Equal(t, "same", string(rec.Data))
		require.NotEmpty(t, rec.Key)
		keys[rec.Key] = true
	}
	assert.Len(t, keys, 4, "every stored record gets its own key")
}

func TestRunKeysDependOnCycle(t *testing.T) {
	gw := &fakeGateway{size: "1", records: []string{"same"}, failAt: -1}
	p, store, _ := newPipeline(t, gw, "")
	p.cfg.Cycle = "cycle-a"

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	rec, err := store.ReadRecord("salud", 0)
	require.NoError(t, err)
	assert.Equal(t, idgen.IngestKey("cycle-a", 0, []byte("same")), rec.Key)
}
