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
	"log/slog"
	"os"
	"path/filepath"
)

// LED names one of the logger's RGB status LEDs.
type LED int

const (
	LEDBattery LED = iota + 1
	LEDWifi
	LEDCheck
)

func (l LED) String() string {
	switch l {
	case LEDBattery:
		return "bat"
	case LEDWifi:
		return "wifi"
	case LEDCheck:
		return "check"
	default:
		return "unknown"
	}
}

// Color is an RGB LED state built from the three on/off channels.
type Color int

const (
	Off Color = iota
	Red
	Green
	Blue
	Purple
	Cyan
	Yellow
	White
)

func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Purple:
		return "purple"
	case Cyan:
		return "cyan"
	case Yellow:
		return "yellow"
	case White:
		return "white"
	default:
		return "unknown"
	}
}

// channels returns the red, green and blue channel states of c.
func (c Color) channels() (r, g, b bool) {
	switch c {
	case Red:
		return true, false, false
	case Green:
		return false, true, false
	case Blue:
		return false, false, true
	case Purple:
		return true, false, true
	case Cyan:
		return false, true, true
	case Yellow:
		return true, true, false
	case White:
		return true, true, true
	default:
		return false, false, false
	}
}

// Indicator drives the status LEDs. It is fire-and-forget: a failing LED
// never changes what a cycle does.
type Indicator interface {
	Set(ctx context.Context, led LED, color Color)
}

// AllOff turns every LED off, the last thing done before suspending.
func AllOff(ctx context.Context, ind Indicator) {
	for _, led := range []LED{LEDBattery, LEDWifi, LEDCheck} {
		ind.Set(ctx, led, Off)
	}
}

// LogIndicator records LED changes in the log instead of driving hardware.
type LogIndicator struct {
	logger *slog.Logger
}

func NewLogIndicator(logger *slog.Logger) *LogIndicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogIndicator{logger: logger.With("component", "indicator")}
}

func (l *LogIndicator) Set(ctx context.Context, led LED, color Color) {
	l.logger.DebugContext(ctx, "LED", slog.String("led", led.String()), slog.String("color", color.String()))
}

// SysfsIndicator drives LEDs exposed by the kernel LED class, one sysfs LED
// per color channel: <root>/<name>:<channel>/brightness.
type SysfsIndicator struct {
	root   string
	names  map[LED]string
	logger *slog.Logger
}

// NewSysfsIndicator creates an indicator rooted at root (normally
// /sys/class/leds) where names maps each LED to its sysfs name prefix.
func NewSysfsIndicator(root string, names map[LED]string, logger *slog.Logger) *SysfsIndicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SysfsIndicator{root: root, names: names, logger: logger.With("component", "indicator")}
}

func (s *SysfsIndicator) Set(ctx context.Context, led LED, color Color) {
	name, ok := s.names[led]
	if !ok {
		return
	}
	r, g, b := color.channels()
	for _, ch := range []struct {
		suffix string
		on     bool
	}{{"red", r}, {"green", g}, {"blue", b}} {
		if err := s.write(name+":"+ch.suffix, ch.on); err != nil {
			s.logger.WarnContext(ctx, "Failed to set LED", slog.String("led", led.String()), slog.Any("error", err))
			return
		}
	}
}

func (s *SysfsIndicator) write(name string, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	path := filepath.Join(s.root, name, "brightness")
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
