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
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Role is what a cycle does once a known network is found.
type Role int

const (
	RoleUnknown Role = iota
	Collector
	Relay
)

func (r Role) String() string {
	switch r {
	case Collector:
		return "collector"
	case Relay:
		return "relay"
	default:
		return "unknown"
	}
}

// ParseRole accepts the config spelling of a role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "collector":
		return Collector, nil
	case "relay":
		return Relay, nil
	default:
		return RoleUnknown, fmt.Errorf("unknown role %q", s)
	}
}

// Profile is one entry of the allow-list.
type Profile struct {
	Identity   string
	Credential string
	Role       Role
}

// Network is one scan result.
type Network struct {
	Identity string
	// Signal is the reported strength in dBm.
	Signal int
}

// Radio is the network collaborator. Scan lists visible identities, Connect
// joins one of them.
type Radio interface {
	Scan(ctx context.Context) ([]Network, error)
	Connect(ctx context.Context, identity, credential string) error
}

// ErrNetworkUnavailable means no allow-listed network could be joined this cycle.
var ErrNetworkUnavailable = errors.New("network unavailable")

const (
	DefaultScanLimit      = 5
	DefaultConnectRetries = 3
)

// Selection is the outcome of a successful Select.
type Selection struct {
	Profile Profile
	// Attempts is the number of Connect calls made, including the one
	// that succeeded.
	Attempts int
}

// Selector matches scan results against the allow-list.
type Selector struct {
	radio          Radio
	profiles       []Profile
	scanLimit      int
	connectRetries int
	logger         *slog.Logger
}

type Option func(*Selector)

// WithScanLimit caps how many scan results are considered.
func WithScanLimit(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.scanLimit = n
		}
	}
}

// WithConnectRetries sets how many times each matched network is tried.
func WithConnectRetries(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.connectRetries = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSelector(radio Radio, profiles []Profile, opts ...Option) *Selector {
	s := &Selector{
		radio:          radio,
		profiles:       profiles,
		scanLimit:      DefaultScanLimit,
		connectRetries: DefaultConnectRetries,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "netselect")
	return s
}

// Select scans once and joins the first visible network, in scan order,
// that is on the allow-list. Each matched network gets the full connect
// budget before the next match is tried. Returns ErrNetworkUnavailable when
// nothing matches or every match refused.
func (s *Selector) Select(ctx context.Context) (Selection, error) {
	visible, err := s.radio.Scan(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: scan: %w", ErrNetworkUnavailable, err)
	}
	if len(visible) > s.scanLimit {
		visible = visible[:s.scanLimit]
	}

	var lastErr error
	for _, n := range visible {
		profile, ok := s.lookup(n.Identity)
		if !ok {
			continue
		}
		for attempt := 1; attempt <= s.connectRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return Selection{}, err
			}
			err := s.radio.Connect(ctx, profile.Identity, profile.Credential)
			if err == nil {
				s.logger.InfoContext(ctx, "Connected",
					slog.String("identity", profile.Identity),
					slog.String("role", profile.Role.String()),
					slog.Int("signal", n.Signal),
					slog.Int("attempts", attempt))
				return Selection{Profile: profile, Attempts: attempt}, nil
			}
			lastErr = err
			s.logger.WarnContext(ctx, "Connect failed",
				slog.String("identity", profile.Identity),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
		}
	}

	if lastErr != nil {
		return Selection{}, fmt.Errorf("%w: connect: %w", ErrNetworkUnavailable, lastErr)
	}
	return Selection{}, fmt.Errorf("%w: no known identity among %d visible", ErrNetworkUnavailable, len(visible))
}

func (s *Selector) lookup(identity string) (Profile, bool) {
	for _, p := range s.profiles {
		if p.Identity == identity {
			return p, true
		}
	}
	return Profile{}, false
}
