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

package netselect

import (
	"context"
	"fmt"
	"slices"
)

// StaticRadio reports a fixed set of visible networks and connects to any of
// them. It stands in for the radio on bench rigs and in tests.
type StaticRadio struct {
	Visible []Network
	// Refuse maps an identity to the number of Connect calls that fail
	// before one succeeds; negative refuses forever.
	Refuse map[string]int

	connects map[string]int
}

func (r *StaticRadio) Scan(context.Context) ([]Network, error) {
	return slices.Clone(r.Visible), nil
}

func (r *StaticRadio) Connect(_ context.Context, identity, _ string) error {
	if r.connects == nil {
		r.connects = map[string]int{}
	}
	r.connects[identity]++
	if !slices.ContainsFunc(r.Visible, func(n Network) bool { return n.Identity == identity }) {
		return fmt.Errorf("%s not in range", identity)
	}
	refuse, ok := r.Refuse[identity]
	if ok && (refuse < 0 || r.connects[identity] <= refuse) {
		return fmt.Errorf("%s refused association", identity)
	}
	return nil
}

// Connects reports how many times Connect was called for identity.
func (r *StaticRadio) Connects(identity string) int {
	return r.connects[identity]
}
