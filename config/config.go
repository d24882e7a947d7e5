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
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Queues    QueuesConfig    `mapstructure:"queues"`
	Network   NetworkConfig   `mapstructure:"network"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Indicator IndicatorConfig `mapstructure:"indicator"`
	Cycle     CycleConfig     `mapstructure:"cycle"`
}

type StorageConfig struct {
	// Root is the directory holding the queues. With the block mounter it
	// is the mount point.
	Root   string `mapstructure:"root"`
	Mount  string `mapstructure:"mount"`
	Device string `mapstructure:"device"`
	FSType string `mapstructure:"fstype"`
}

type QueuesConfig struct {
	Success   string `mapstructure:"success"`
	Error     string `mapstructure:"error"`
	Telemetry string `mapstructure:"telemetry"`
}

type ProfileConfig struct {
	Identity   string `mapstructure:"identity"`
	Credential string `mapstructure:"credential"`
	Role       string `mapstructure:"role"`
}

type NetworkConfig struct {
	Backend        string          `mapstructure:"backend"`
	Interface      string          `mapstructure:"interface"`
	ScanLimit      int             `mapstructure:"scan_limit"`
	ConnectRetries int             `mapstructure:"connect_retries"`
	Profiles       []ProfileConfig `mapstructure:"profiles"`
	// Visible lists the identities the static backend reports.
	Visible []string `mapstructure:"visible"`
}

type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	SizePath   string        `mapstructure:"size_path"`
	DataPath   string        `mapstructure:"data_path"`
	IndexParam string        `mapstructure:"index_param"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxBody    int64         `mapstructure:"max_body"`
}

type EndpointConfig struct {
	Name     string            `mapstructure:"name"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
	Required bool              `mapstructure:"required"`
	Timeout  time.Duration     `mapstructure:"timeout"`
}

type DeliveryConfig struct {
	Endpoints    []EndpointConfig `mapstructure:"endpoints"`
	TelemetryURL string           `mapstructure:"telemetry_url"`
	// APIKey fills every ApiKey header left empty, so the secret can come
	// from the environment.
	APIKey string `mapstructure:"api_key"`
}

type TelemetryConfig struct {
	Sampler     string  `mapstructure:"sampler"`
	IIOPath     string  `mapstructure:"iio_path"`
	Scale       float64 `mapstructure:"scale"`
	StaticVolts float64 `mapstructure:"static_volts"`
}

type IndicatorConfig struct {
	Backend   string `mapstructure:"backend"`
	SysfsRoot string `mapstructure:"sysfs_root"`
	Battery   string `mapstructure:"battery"`
	Wifi      string `mapstructure:"wifi"`
	Check     string `mapstructure:"check"`
}

type CycleConfig struct {
	Suspend  string        `mapstructure:"suspend"`
	Interval time.Duration `mapstructure:"interval"`
	RTCMode  string        `mapstructure:"rtc_mode"`
}

// DefaultConfig matches the field deployment: collector near the ESP-AP
// gateway, relay on the WIFILOCAL modem.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Root:   "/sdcard",
			Mount:  MountDir,
			FSType: "vfat",
		},
		Queues: QueuesConfig{
			Success:   "salud",
			Error:     "e_salud",
			Telemetry: "bateria",
		},
		Network: NetworkConfig{
			Backend:        NetworkStatic,
			ScanLimit:      5,
			ConnectRetries: 3,
			Profiles: []ProfileConfig{
				{Identity: "ESP-AP", Role: "collector"},
				{Identity: "WIFILOCAL", Role: "relay"},
			},
		},
		Gateway: GatewayConfig{
			BaseURL:  "http://10.42.0.1:5000",
			SizePath: "/salud/size",
			DataPath: "/salud/datos",
			Timeout:  5 * time.Second,
			MaxBody:  20480,
		},
		Delivery: DeliveryConfig{
			Endpoints: []EndpointConfig{
				{
					Name:    "relay",
					URL:     "http://localhost:8080/salud",
					Timeout: 10 * time.Second,
					Headers: map[string]string{"Content-Type": "application/json"},
				},
				{
					Name:     "cloud",
					URL:      "http://localhost:8081/salud",
					Required: true,
					Timeout:  10 * time.Second,
					Headers:  map[string]string{"Content-Type": "application/json", "ApiKey": ""},
				},
			},
		},
		Telemetry: TelemetryConfig{
			Sampler:     SamplerStatic,
			Scale:       1,
			StaticVolts: 3.7,
		},
		Indicator: IndicatorConfig{
			Backend:   IndicatorLog,
			SysfsRoot: "/sys/class/leds",
			Battery:   "bat",
			Wifi:      "wifi",
			Check:     "check",
		},
		Cycle: CycleConfig{
			Suspend:  SuspendSleep,
			Interval: 10 * time.Minute,
			RTCMode:  "mem",
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "FIELDRELAY" and the dot character
// in keys is replaced by an underscore. For example, "gateway.base_url"
// becomes "FIELDRELAY_GATEWAY_BASE_URL".
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches for
// config.yaml in the working directory and /etc/fieldrelay, and a missing
// file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fieldrelay")
	}
	v.SetEnvPrefix("FIELDRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Lists from the file replace the defaults instead of merging into them.
	if v.IsSet("network.profiles") {
		cfg.Network.Profiles = nil
	}
	if v.IsSet("delivery.endpoints") {
		cfg.Delivery.Endpoints = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if s := v.GetString("network.visible"); s != "" {
		cfg.Network.Visible = splitList(s)
	}
	cfg.applyAPIKey()
	return cfg, nil
}

func (c *Config) applyAPIKey() {
	if c.Delivery.APIKey == "" {
		return
	}
	for _, e := range c.Delivery.Endpoints {
		for k, v := range e.Headers {
			// Keys read from a file arrive lowercased.
			if strings.EqualFold(k, "ApiKey") && v == "" {
				e.Headers[k] = c.Delivery.APIKey
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
