package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "iotmon.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
monitor:
  ping_cycle: 30
  purge_after_days: 7
  default_suppress_count: 1
probe:
  method: exec
  timeout: 3s
  count: 2
notify:
  timeout: 5s
devices:
  - address: 192.168.1.20
    description: Garage camera
    suppress_count: 4
  - address: printer.lan
database:
  path: "/tmp/iotmon-test.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Monitor.PingCycle != 30 {
		t.Errorf("Monitor.PingCycle = %d, want 30", cfg.Monitor.PingCycle)
	}
	if cfg.GetPurgeHorizon() != 7*24*time.Hour {
		t.Errorf("GetPurgeHorizon() = %v, want 168h", cfg.GetPurgeHorizon())
	}
	if cfg.Probe.Method != "exec" {
		t.Errorf("Probe.Method = %q, want %q", cfg.Probe.Method, "exec")
	}
	if cfg.Probe.Timeout != 3*time.Second {
		t.Errorf("Probe.Timeout = %v, want 3s", cfg.Probe.Timeout)
	}
	if cfg.Notify.Timeout != 5*time.Second {
		t.Errorf("Notify.Timeout = %v, want 5s", cfg.Notify.Timeout)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if got := cfg.SuppressCountFor(cfg.Devices[0]); got != 4 {
		t.Errorf("SuppressCountFor(device 0) = %d, want 4", got)
	}
	if got := cfg.SuppressCountFor(cfg.Devices[1]); got != 1 {
		t.Errorf("SuppressCountFor(device 1) = %d, want default 1", got)
	}
	if cfg.Devices[1].Description != "printer.lan" {
		t.Errorf("Devices[1].Description = %q, want address fallback", cfg.Devices[1].Description)
	}
}

func TestLoad_MapFormDevices(t *testing.T) {
	content := `
devices:
  192.168.1.30: Doorbell
  192.168.1.10: Thermostat
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	// Map form is sorted by address for a stable registry order.
	if cfg.Devices[0].Address != "192.168.1.10" || cfg.Devices[0].Description != "Thermostat" {
		t.Errorf("Devices[0] = %+v, want 192.168.1.10/Thermostat", cfg.Devices[0])
	}
	if cfg.Devices[0].SuppressCount != nil {
		t.Errorf("Devices[0].SuppressCount = %v, want nil", *cfg.Devices[0].SuppressCount)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "devices:\n  - address: 10.0.0.1\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GetPingCycle() != time.Minute {
		t.Errorf("GetPingCycle() = %v, want 1m", cfg.GetPingCycle())
	}
	if cfg.Monitor.DefaultSuppressCount != 2 {
		t.Errorf("DefaultSuppressCount = %d, want 2", cfg.Monitor.DefaultSuppressCount)
	}
	if cfg.Probe.Method != "icmp" {
		t.Errorf("Probe.Method = %q, want icmp", cfg.Probe.Method)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Notify.Timeout != 30*time.Second {
		t.Errorf("Notify.Timeout = %v, want 30s", cfg.Notify.Timeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/iotmon.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_DevicesWrongKind(t *testing.T) {
	_, err := Load(writeConfig(t, "devices: just-a-string\n"))
	if err == nil {
		t.Error("Load() expected error for scalar devices, got nil")
	}
}

func TestValidate(t *testing.T) {
	negative := -1

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(_ *Config) {},
			wantErr: "",
		},
		{
			name:    "no devices",
			mutate:  func(c *Config) { c.Devices = nil },
			wantErr: "at least one device",
		},
		{
			name: "duplicate address",
			mutate: func(c *Config) {
				c.Devices = append(c.Devices, DeviceConfig{Address: "10.0.0.1"})
			},
			wantErr: "duplicate address",
		},
		{
			name: "option-like address",
			mutate: func(c *Config) {
				c.Devices[0].Address = "-f"
			},
			wantErr: "is not a hostname or IP",
		},
		{
			name: "negative device suppress count",
			mutate: func(c *Config) {
				c.Devices[0].SuppressCount = &negative
			},
			wantErr: "suppress_count cannot be negative",
		},
		{
			name:    "zero ping cycle",
			mutate:  func(c *Config) { c.Monitor.PingCycle = 0 },
			wantErr: "ping_cycle",
		},
		{
			name:    "unknown probe method",
			mutate:  func(c *Config) { c.Probe.Method = "arp" },
			wantErr: "probe.method",
		},
		{
			name:    "zero notify timeout",
			mutate:  func(c *Config) { c.Notify.Timeout = 0 },
			wantErr: "notify.timeout",
		},
		{
			name: "email without recipients",
			mutate: func(c *Config) {
				c.Notify.Email.Enabled = true
			},
			wantErr: "notify.email.to",
		},
		{
			name: "telegram without token",
			mutate: func(c *Config) {
				c.Notify.Telegram.Enabled = true
				c.Notify.Telegram.ChatIDs = []int64{42}
			},
			wantErr: "notify.telegram.token",
		},
		{
			name: "mqtt bad qos",
			mutate: func(c *Config) {
				c.Notify.MQTT.Enabled = true
				c.Notify.MQTT.QoS = 3
			},
			wantErr: "notify.mqtt.qos",
		},
		{
			name: "influxdb without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Devices = DeviceList{{Address: "10.0.0.1", Description: "router"}}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("IOTMON_DATABASE_PATH", "/var/lib/iotmon/state.db")
	t.Setenv("IOTMON_SMTP_PASSWORD", "app-password")
	t.Setenv("IOTMON_TELEGRAM_TOKEN", "123:abc")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/var/lib/iotmon/state.db" {
		t.Errorf("Database.Path = %q, want override", cfg.Database.Path)
	}
	if cfg.Notify.Email.Password != "app-password" {
		t.Errorf("Email.Password not overridden")
	}
	if cfg.Notify.Telegram.Token != "123:abc" {
		t.Errorf("Telegram.Token not overridden")
	}
}

func TestModTime(t *testing.T) {
	path := writeConfig(t, "devices:\n  - address: 10.0.0.1\n")

	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, want, want); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	got, err := ModTime(path)
	if err != nil {
		t.Fatalf("ModTime() error = %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("ModTime() = %v, want %v", got, want)
	}

	if _, err := ModTime(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("ModTime() expected error for missing file")
	}
}

func TestAPIConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()

	if cfg.API.ReadTimeout() != time.Duration(cfg.API.Timeouts.Read)*time.Second {
		t.Errorf("ReadTimeout() = %v", cfg.API.ReadTimeout())
	}
	if cfg.API.WriteTimeout() <= 0 || cfg.API.IdleTimeout() <= 0 {
		t.Errorf("WriteTimeout() = %v, IdleTimeout() = %v, want positive defaults",
			cfg.API.WriteTimeout(), cfg.API.IdleTimeout())
	}
}

func TestLoad_ShippedExample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "iotmon.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/iotmon.yaml) error = %v", err)
	}
	if len(cfg.Devices) == 0 {
		t.Error("example config has no devices")
	}
}
