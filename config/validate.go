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

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate reports every problem found, not only the first.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	oneOf := func(key, value string, allowed ...string) {
		if !slices.Contains(allowed, value) {
			add("%s: %q is not one of %s", key, value, strings.Join(allowed, ", "))
		}
	}

	if c.Storage.Root == "" {
		add("storage.root: required")
	}
	oneOf("storage.mount", c.Storage.Mount, MountDir, MountBlock)
	if c.Storage.Mount == MountBlock && c.Storage.Device == "" {
		add("storage.device: required with block mount")
	}

	queues := map[string]string{}
	for key, name := range map[string]string{
		"queues.success":   c.Queues.Success,
		"queues.error":     c.Queues.Error,
		"queues.telemetry": c.Queues.Telemetry,
	} {
		if name == "" {
			add("%s: required", key)
			continue
		}
		if other, ok := queues[name]; ok {
			add("%s: %q already used by %s", key, name, other)
		}
		queues[name] = key
	}

	oneOf("network.backend", c.Network.Backend, NetworkStatic, NetworkNMCLI)
	if c.Network.ScanLimit <= 0 {
		add("network.scan_limit: must be positive")
	}
	if c.Network.ConnectRetries <= 0 {
		add("network.connect_retries: must be positive")
	}
	if len(c.Network.Profiles) == 0 {
		add("network.profiles: at least one profile required")
	}
	seen := map[string]bool{}
	for i, p := range c.Network.Profiles {
		if p.Identity == "" {
			add("network.profiles[%d]: missing identity", i)
		}
		if seen[p.Identity] {
			add("network.profiles[%d]: duplicate identity %q", i, p.Identity)
		}
		seen[p.Identity] = true
		oneOf(fmt.Sprintf("network.profiles[%d].role", i), strings.ToLower(p.Role), "collector", "relay")
	}

	if c.Gateway.BaseURL == "" {
		add("gateway.base_url: required")
	}
	if c.Gateway.Timeout <= 0 {
		add("gateway.timeout: must be positive")
	}
	if c.Gateway.MaxBody <= 0 {
		add("gateway.max_body: must be positive")
	}

	if len(c.Delivery.Endpoints) == 0 {
		add("delivery.endpoints: at least one endpoint required")
	}
	required := false
	names := map[string]bool{}
	for i, e := range c.Delivery.Endpoints {
		if e.Name == "" || names[e.Name] {
			add("delivery.endpoints[%d]: missing or duplicate name %q", i, e.Name)
		}
		names[e.Name] = true
		if e.URL == "" {
			add("delivery.endpoints[%d]: missing url", i)
		}
		if e.Timeout <= 0 {
			add("delivery.endpoints[%d]: timeout must be positive", i)
		}
		required = required || e.Required
	}
	if len(c.Delivery.Endpoints) > 0 && !required {
		add("delivery.endpoints: at least one endpoint must be required")
	}

	oneOf("telemetry.sampler", c.Telemetry.Sampler, SamplerStatic, SamplerIIO)
	if c.Telemetry.Sampler == SamplerIIO && c.Telemetry.IIOPath == "" {
		add("telemetry.iio_path: required with iio sampler")
	}
	oneOf("indicator.backend", c.Indicator.Backend, IndicatorLog, IndicatorSysfs)
	oneOf("cycle.suspend", c.Cycle.Suspend, SuspendSleep, SuspendExit, SuspendRTCWake)
	if c.Cycle.Interval <= 0 {
		add("cycle.interval: must be positive")
	}

	return errors.Join(errs...)
}
