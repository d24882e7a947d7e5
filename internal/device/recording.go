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
	"sync"
)

// LEDChange is one recorded Indicator.Set call.
type LEDChange struct {
	LED   LED
	Color Color
}

// RecordingIndicator keeps every LED change in memory.
type RecordingIndicator struct {
	mu      sync.Mutex
	changes []LEDChange
}

func (r *RecordingIndicator) Set(_ context.Context, led LED, color Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, LEDChange{LED: led, Color: color})
}

// Changes returns a copy of the recorded changes in call order.
func (r *RecordingIndicator) Changes() []LEDChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LEDChange(nil), r.changes...)
}

// Last returns the most recent color set on led, and false if it was never set.
func (r *RecordingIndicator) Last(led LED) (Color, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.changes) - 1; i >= 0; i-- {
		if r.changes[i].LED == led {
			return r.changes[i].Color, true
		}
	}
	return Off, false
}
