package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/iotmon/internal/device"
	"github.com/nerrad567/iotmon/internal/infrastructure/config"
	"github.com/nerrad567/iotmon/internal/infrastructure/database"
	"github.com/nerrad567/iotmon/internal/infrastructure/lock"
	"github.com/nerrad567/iotmon/internal/infrastructure/logging"
	"github.com/nerrad567/iotmon/internal/notify"
)

// writeTestConfig writes a config using the exec prober with pingBinary
// and returns its path along with the database and lock paths.
func writeTestConfig(t *testing.T, pingBinary string) (configPath, dbPath, lockPath string) {
	t.Helper()

	dir := t.TempDir()
	configPath = filepath.Join(dir, "iotmon.yaml")
	dbPath = filepath.Join(dir, "data", "iotmon.db")
	lockPath = filepath.Join(dir, "data", "iotmon.lock")

	content := `
monitor:
  ping_cycle: 1
  purge_after_days: 30
  default_suppress_count: 2
probe:
  method: exec
  ping_binary: "` + pingBinary + `"
  timeout: 1s
  count: 1
devices:
  - address: 192.0.2.10
    description: Garage camera
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5
lock:
  path: "` + lockPath + `"
logging:
  level: info
  format: text
  output: discard
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath, dbPath, lockPath
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			args: nil,
			want: options{debug: logging.DebugUnset},
		},
		{
			name: "all flags",
			args: []string{"-config", "/etc/iotmon.yaml", "-debug", "9", "-version"},
			want: options{configPath: "/etc/iotmon.yaml", debug: logging.DebugTrace, showVersion: true},
		},
		{
			name:    "unknown flag",
			args:    []string{"-verbose"},
			wantErr: true,
		},
		{
			name:    "stray argument",
			args:    []string{"extra"},
			wantErr: true,
		},
		{
			name:    "non-numeric debug",
			args:    []string{"-debug", "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseFlags(%v) error = nil, want error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseFlags(%v) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	var out strings.Builder
	_, err := parseFlags([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("parseFlags(-h) error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out.String(), "-config") {
		t.Errorf("usage output missing -config: %q", out.String())
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configPathEnv, "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configPathEnv, "/from/env.yaml")
	if got := getConfigPath(""); got != "/from/env.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
	if got := getConfigPath("/from/flag.yaml"); got != "/from/flag.yaml" {
		t.Errorf("getConfigPath() = %q, want flag value", got)
	}
}

func TestLoadDotenv(t *testing.T) {
	if err := loadDotenv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("loadDotenv(missing) error = %v, want nil", err)
	}

	t.Setenv("IOTMON_TEST_SECRET", "")
	os.Unsetenv("IOTMON_TEST_SECRET") //nolint:errcheck // restored by t.Setenv

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("IOTMON_TEST_SECRET=hunter2\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv() error = %v", err)
	}
	if got := os.Getenv("IOTMON_TEST_SECRET"); got != "hunter2" {
		t.Errorf("IOTMON_TEST_SECRET = %q, want hunter2", got)
	}
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: "/nonexistent/path/iotmon.yaml", debug: logging.DebugOff})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

// TestRun_AlreadyRunning verifies a second instance refuses to start.
func TestRun_AlreadyRunning(t *testing.T) {
	configPath, _, lockPath := writeTestConfig(t, "true")

	held, err := lock.Acquire(lockPath)
	if err != nil {
		t.Fatalf("lock.Acquire() error = %v", err)
	}
	defer held.Release() //nolint:errcheck // test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = run(ctx, options{configPath: configPath, debug: logging.DebugOff})
	if !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("run() error = %v, want lock.ErrLocked", err)
	}
}

// TestRun_MonitorsUntilCancelled runs the full stack with a ping stand-in
// that always succeeds and checks the device was recorded as up.
func TestRun_MonitorsUntilCancelled(t *testing.T) {
	pingBinary, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not available")
	}
	configPath, dbPath, _ := writeTestConfig(t, pingBinary)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	if err := run(ctx, options{configPath: configPath, debug: logging.DebugOff}); err != nil {
		t.Fatalf("run() error = %v, want nil on cancellation", err)
	}

	db, err := database.Open(config.DatabaseConfig{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()

	dev, err := device.NewSQLiteRepository(db.DB).Get(checkCtx, "192.0.2.10")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if dev.State != device.StateUp {
		t.Errorf("State = %s, want %s", dev.State, device.StateUp)
	}
	if dev.Description != "Garage camera" {
		t.Errorf("Description = %q, want Garage camera", dev.Description)
	}

	history, err := device.NewSQLiteTransitionLog(db.DB).History(checkCtx, "192.0.2.10", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(History) = %d, want 1 (first sighting)", len(history))
	}
	if history[0].PreviousState != device.StateUnknown || history[0].NewState != device.StateUp {
		t.Errorf("transition = %s -> %s, want UNKNOWN -> UP", history[0].PreviousState, history[0].NewState)
	}
}

// TestNewBuilder_NotifyTimeout checks the configured timeout bounds a
// channel whose server accepts the connection and never answers.
func TestNewBuilder_NotifyTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			defer conn.Close()
		}
	}()

	log, err := logging.New(config.LoggingConfig{Output: logging.OutputDiscard}, "test")
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}

	cfg := &config.Config{
		Probe: config.ProbeConfig{Method: "exec"},
		Notify: config.NotifyConfig{
			Timeout: 200 * time.Millisecond,
			Email: config.EmailConfig{
				Enabled:  true,
				SMTPHost: "127.0.0.1",
				SMTPPort: ln.Addr().(*net.TCPAddr).Port,
				From:     "iotmon@example.com",
				To:       []string{"ops@example.com"},
			},
		},
	}

	_, dispatcher, err := newBuilder(nil, log)(cfg)
	if err != nil {
		t.Fatalf("builder error = %v", err)
	}

	start := time.Now()
	err = dispatcher.Dispatch(context.Background(), notify.Message{
		Address:  "192.0.2.10",
		Previous: device.StateUp,
		Current:  device.StateDown,
		Kind:     device.NotifyDown,
		At:       start,
	})
	if !errors.Is(err, notify.ErrDelivery) {
		t.Fatalf("Dispatch() error = %v, want ErrDelivery", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Dispatch() took %v, want it bounded by notify.timeout", elapsed)
	}
}
