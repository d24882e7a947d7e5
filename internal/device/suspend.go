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
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Suspender puts the logger into its low-power state for d. On hardware
// with a real suspend it does not return until the next wake.
type Suspender interface {
	Suspend(ctx context.Context, d time.Duration) error
}

// SleepSuspender waits out the interval in-process, for bench rigs and
// always-powered installs.
type SleepSuspender struct{}

func (SleepSuspender) Suspend(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitSuspender returns immediately; an external timer (systemd, cron, an
// RTC alarm wired to the power switch) starts the next cycle.
type ExitSuspender struct{}

func (ExitSuspender) Suspend(context.Context, time.Duration) error {
	return nil
}

// RTCWakeSuspender suspends to RAM with an RTC alarm via rtcwake(8).
type RTCWakeSuspender struct {
	// Mode is the rtcwake -m argument; "mem" if empty.
	Mode string
}

func (r RTCWakeSuspender) Suspend(ctx context.Context, d time.Duration) error {
	mode := r.Mode
	if mode == "" {
		mode = "mem"
	}
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	out, err := exec.CommandContext(ctx, "rtcwake", "-m", mode, "-s", strconv.Itoa(secs)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rtcwake: %w: %s", err, out)
	}
	return nil
}
