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

package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorChannels(t *testing.T) {
	tests := []struct {
		color   Color
		r, g, b bool
	}{
		{Off, false, false, false},
		{Red, true, false, false},
		{Green, false, true, false},
		{Blue, false, false, true},
		{Purple, true, false, true},
		{Cyan, false, true, true},
		{Yellow, true, true, false},
		{White, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.color.String(), func(t *testing.T) {
			r, g, b := tt.color.channels()
			assert.Equal(t, tt.r, r)
			assert.Equal(t, tt.g, g)
			assert.Equal(t, tt.b, b)
		})
	}
}

func TestSysfsIndicator(t *testing.T) {
	root := t.TempDir()
	for _, ch := range []string{"red", "green", "blue"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "wifi:"+ch), 0o755))
	}
	ind := NewSysfsIndicator(root, map[LED]string{LEDWifi: "wifi"}, nil)

	ind.Set(context.Background(), LEDWifi, Yellow)

	read := func(ch string) string {
		b, err := os.ReadFile(filepath.Join(root, "wifi:"+ch, "brightness"))
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "1", read("red"))
	assert.Equal(t, "1", read("green"))
	assert.Equal(t, "0", read("blue"))

	// Unmapped and missing LEDs are ignored.
	ind.Set(context.Background(), LEDCheck, Red)
	NewSysfsIndicator(t.TempDir(), map[LED]string{LEDBattery: "bat"}, nil).Set(context.Background(), LEDBattery, Red)
}

func TestRecordingIndicator(t *testing.T) {
	var rec RecordingIndicator
	ctx := context.Background()
	rec.Set(ctx, LEDWifi, Green)
	rec.Set(ctx, LEDCheck, Red)
	rec.Set(ctx, LEDWifi, Blue)
	AllOff(ctx, &rec)

	assert.Len(t, rec.Changes(), 6)
	c, ok := rec.Last(LEDWifi)
	assert.True(t, ok)
	assert.Equal(t, Off, c)
	assert.Equal(t, LEDChange{LEDWifi, Blue}, rec.Changes()[2])
}

func TestIIOSampler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in_voltage0_raw")
	require.NoError(t, os.WriteFile(path, []byte("2048\n"), 0o644))

	v, err := IIOSampler{Path: path, Scale: 0.002}.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4.096, v, 1e-9)

	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	_, err = IIOSampler{Path: path, Scale: 1}.Sample(context.Background())
	assert.Error(t, err)

	_, err = IIOSampler{Path: filepath.Join(t.TempDir(), "missing")}.Sample(context.Background())
	assert.Error(t, err)
}

func TestStaticSampler(t *testing.T) {
	v, err := StaticSampler{Volts: 3.7}.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.7, v)
}

func TestDirMounter(t *testing.T) {
	dir := t.TempDir()
	m := DirMounter{Path: dir}
	require.NoError(t, m.Mount(context.Background()))
	require.NoError(t, m.Unmount(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	nested := filepath.Join(t.TempDir(), "sd", "queues")
	require.NoError(t, DirMounter{Path: nested}.Mount(context.Background()))
	assert.DirExists(t, nested)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, DirMounter{Path: file}.Mount(context.Background()))
	assert.Error(t, DirMounter{Path: filepath.Join(file, "below")}.Mount(context.Background()))
}

func TestSleepSuspender(t *testing.T) {
	start := time.Now()
	require.NoError(t, SleepSuspender{}.Suspend(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepSuspender{}.Suspend(ctx, time.Hour), context.Canceled)
}

func TestExitSuspender(t *testing.T) {
	assert.NoError(t, ExitSuspender{}.Suspend(context.Background(), time.Hour))
}

func TestUsage(t *testing.T) {
	u, err := Usage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, u.TotalBytes)
	assert.LessOrEqual(t, u.FreeBytes, u.TotalBytes)
}
