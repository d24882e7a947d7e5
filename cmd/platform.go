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

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/cardinalhq/fieldrelay/config"
	"github.com/cardinalhq/fieldrelay/internal/delivery"
	"github.com/cardinalhq/fieldrelay/internal/device"
	"github.com/cardinalhq/fieldrelay/internal/dutycycle"
	"github.com/cardinalhq/fieldrelay/internal/ingest"
	"github.com/cardinalhq/fieldrelay/internal/netselect"
	"github.com/cardinalhq/fieldrelay/internal/transport"
)

// newController builds the collaborators for one cycle from cfg.
func newController(cfg *config.Config, logger *slog.Logger) (*dutycycle.Controller, error) {
	profiles, err := buildProfiles(cfg.Network)
	if err != nil {
		return nil, err
	}
	endpoints := buildEndpoints(cfg.Delivery)
	if err := delivery.ValidateEndpoints(endpoints); err != nil {
		return nil, err
	}

	selector := netselect.NewSelector(buildRadio(cfg.Network), profiles,
		netselect.WithScanLimit(cfg.Network.ScanLimit),
		netselect.WithConnectRetries(cfg.Network.ConnectRetries),
		netselect.WithLogger(logger))

	return dutycycle.New(dutycycle.Config{
		StoreRoot: cfg.Storage.Root,
		Mounter:   buildMounter(cfg.Storage),
		Selector:  selector,
		Indicator: buildIndicator(cfg.Indicator, logger),
		Sampler:   buildSampler(cfg.Telemetry),
		Suspender: buildSuspender(cfg.Cycle),
		Client:    transport.NewClient(transport.WithMaxBody(cfg.Gateway.MaxBody)),
		Ingest: ingest.Config{
			BaseURL:    cfg.Gateway.BaseURL,
			SizePath:   cfg.Gateway.SizePath,
			DataPath:   cfg.Gateway.DataPath,
			IndexParam: cfg.Gateway.IndexParam,
			Timeout:    cfg.Gateway.Timeout,
			Queue:      cfg.Queues.Success,
		},
		Delivery: delivery.Config{
			SuccessQueue: cfg.Queues.Success,
			ErrorQueue:   cfg.Queues.Error,
			Endpoints:    endpoints,
		},
		TelemetryQueue:    cfg.Queues.Telemetry,
		TelemetryEndpoint: buildTelemetryEndpoint(cfg.Delivery),
		Interval:          cfg.Cycle.Interval,
		Logger:            logger,
	}), nil
}

func buildProfiles(cfg config.NetworkConfig) ([]netselect.Profile, error) {
	profiles := make([]netselect.Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		role, err := netselect.ParseRole(p.Role)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Identity, err)
		}
		profiles = append(profiles, netselect.Profile{
			Identity:   p.Identity,
			Credential: p.Credential,
			Role:       role,
		})
	}
	return profiles, nil
}

func buildEndpoints(cfg config.DeliveryConfig) []delivery.Endpoint {
	endpoints := make([]delivery.Endpoint, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		endpoints = append(endpoints, delivery.Endpoint{
			Name:     e.Name,
			URL:      e.URL,
			Headers:  e.Headers,
			Required: e.Required,
			Timeout:  e.Timeout,
		})
	}
	return endpoints
}

func buildTelemetryEndpoint(cfg config.DeliveryConfig) *delivery.Endpoint {
	if cfg.TelemetryURL == "" {
		return nil
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if cfg.APIKey != "" {
		headers["ApiKey"] = cfg.APIKey
	}
	return &delivery.Endpoint{
		Name:    "telemetry",
		URL:     cfg.TelemetryURL,
		Headers: headers,
		Timeout: transport.DefaultTimeout,
	}
}

func buildRadio(cfg config.NetworkConfig) netselect.Radio {
	if cfg.Backend == config.NetworkNMCLI {
		return netselect.NMCLIRadio{Interface: cfg.Interface}
	}
	radio := &netselect.StaticRadio{}
	for _, id := range cfg.Visible {
		radio.Visible = append(radio.Visible, netselect.Network{Identity: id})
	}
	return radio
}

func buildMounter(cfg config.StorageConfig) device.Mounter {
	if cfg.Mount == config.MountBlock {
		return device.BlockMounter{Device: cfg.Device, Target: cfg.Root, FSType: cfg.FSType}
	}
	return device.DirMounter{Path: cfg.Root}
}

func buildIndicator(cfg config.IndicatorConfig, logger *slog.Logger) device.Indicator {
	if cfg.Backend == config.IndicatorSysfs {
		return device.NewSysfsIndicator(cfg.SysfsRoot, map[device.LED]string{
			device.LEDBattery: cfg.Battery,
			device.LEDWifi:    cfg.Wifi,
			device.LEDCheck:   cfg.Check,
		}, logger)
	}
	return device.NewLogIndicator(logger)
}

func buildSampler(cfg config.TelemetryConfig) device.Sampler {
	if cfg.Sampler == config.SamplerIIO {
		return device.IIOSampler{Path: cfg.IIOPath, Scale: cfg.Scale}
	}
	return device.StaticSampler{Volts: cfg.StaticVolts}
}

func buildSuspender(cfg config.CycleConfig) device.Suspender {
	switch cfg.Suspend {
	case config.SuspendExit:
		return device.ExitSuspender{}
	case config.SuspendRTCWake:
		return device.RTCWakeSuspender{Mode: cfg.RTCMode}
	default:
		return device.SleepSuspender{}
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
