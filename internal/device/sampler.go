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
	"os"
	"strconv"
	"strings"
)

// Sampler reads the analog side channel, the battery voltage.
type Sampler interface {
	Sample(ctx context.Context) (float64, error)
}

// StaticSampler always reports the same voltage.
type StaticSampler struct {
	Volts float64
}

func (s StaticSampler) Sample(context.Context) (float64, error) {
	return s.Volts, nil
}

// IIOSampler reads a Linux IIO raw channel, such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw, and multiplies it by
// scale (volts per count, including any divider on the board).
type IIOSampler struct {
	Path  string
	Scale float64
}

func (s IIOSampler) Sample(context.Context) (float64, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("read analog channel: %w", err)
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse analog channel %s: %w", s.Path, err)
	}
	return raw * s.Scale, nil
}
