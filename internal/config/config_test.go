package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":8090" {
		t.Fatalf("unexpected ListenAddr %q", cfg.ListenAddr)
	}
	if cfg.SourceURL != "http://localhost:8080" {
		t.Fatalf("unexpected SourceURL %q", cfg.SourceURL)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("unexpected PollInterval %s", cfg.PollInterval)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("unexpected FetchTimeout %s", cfg.FetchTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.LogFile != "" {
		t.Fatalf("unexpected LogFile %q", cfg.LogFile)
	}
	if cfg.SysfsRoot != "/sys" {
		t.Fatalf("unexpected SysfsRoot %q", cfg.SysfsRoot)
	}
	if !cfg.EnableInterfaces {
		t.Fatalf("expected interface discovery enabled by default")
	}
	if cfg.WS.MaxClients != 1024 {
		t.Fatalf("unexpected WS.MaxClients %d", cfg.WS.MaxClients)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("APP_SOURCE_URL", "https://collector.lan:8443/snapshot")
	t.Setenv("APP_POLL_INTERVAL", "500ms")
	t.Setenv("APP_FETCH_TIMEOUT", "2s")
	t.Setenv("APP_ALLOWED_ORIGINS", "https://example.com, https://other.test")
	t.Setenv("APP_ENABLE_PROMETHEUS", "true")
	t.Setenv("APP_ENABLE_PPROF", "true")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_LOG_FILE", "/tmp/conntop.log")
	t.Setenv("APP_SYSFS_ROOT", "/tmp/sys")
	t.Setenv("APP_INTERFACES_ENABLE", "false")
	t.Setenv("APP_WS_MAX_CLIENTS", "2048")
	t.Setenv("APP_WS_WRITE_TIMEOUT", "10s")
	t.Setenv("APP_WS_READ_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr override failed, got %q", cfg.ListenAddr)
	}
	if cfg.SourceURL != "https://collector.lan:8443/snapshot" {
		t.Fatalf("SourceURL override failed, got %q", cfg.SourceURL)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("PollInterval override failed, got %s", cfg.PollInterval)
	}
	if cfg.FetchTimeout != 2*time.Second {
		t.Fatalf("FetchTimeout override failed, got %s", cfg.FetchTimeout)
	}
	wantOrigins := []string{"https://example.com", "https://other.test"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins mismatch: %+v", cfg.AllowedOrigins)
	}
	if !cfg.EnablePrometheus {
		t.Fatalf("EnablePrometheus override failed")
	}
	if !cfg.EnablePprof {
		t.Fatalf("EnablePprof override failed")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.LogFile != "/tmp/conntop.log" {
		t.Fatalf("LogFile override failed, got %q", cfg.LogFile)
	}
	if cfg.SysfsRoot != "/tmp/sys" {
		t.Fatalf("SysfsRoot override failed, got %q", cfg.SysfsRoot)
	}
	if cfg.EnableInterfaces {
		t.Fatalf("EnableInterfaces override failed, expected false")
	}
	if cfg.WS.MaxClients != 2048 {
		t.Fatalf("WS.MaxClients override failed, got %d", cfg.WS.MaxClients)
	}
	if cfg.WS.WriteTimeout != 10*time.Second {
		t.Fatalf("WS.WriteTimeout override failed, got %s", cfg.WS.WriteTimeout)
	}
	if cfg.WS.ReadTimeout != 45*time.Second {
		t.Fatalf("WS.ReadTimeout override failed, got %s", cfg.WS.ReadTimeout)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"RelativeSourceURL", "APP_SOURCE_URL", "localhost:8080"},
		{"UnsupportedSourceScheme", "APP_SOURCE_URL", "ftp://localhost"},
		{"SourceURLWithoutHost", "APP_SOURCE_URL", "http://"},
		{"InvalidPollInterval", "APP_POLL_INTERVAL", "often"},
		{"NegativePollInterval", "APP_POLL_INTERVAL", "-1s"},
		{"NonPositiveFetchTimeout", "APP_FETCH_TIMEOUT", "0"},
		{"InvalidFetchTimeout", "APP_FETCH_TIMEOUT", "soon"},
		{"InvalidOrigins", "APP_ALLOWED_ORIGINS", ","},
		{"InvalidPrometheusBool", "APP_ENABLE_PROMETHEUS", "maybe"},
		{"InvalidPprofBool", "APP_ENABLE_PPROF", "perhaps"},
		{"InvalidLogLevel", "APP_LOG_LEVEL", "loud"},
		{"InvalidInterfacesBool", "APP_INTERFACES_ENABLE", "sometimes"},
		{"InvalidWSMaxClients", "APP_WS_MAX_CLIENTS", "zero"},
		{"NonPositiveWSMaxClients", "APP_WS_MAX_CLIENTS", "0"},
		{"InvalidWSWriteTimeout", "APP_WS_WRITE_TIMEOUT", "nope"},
		{"NegativeWSWriteTimeout", "APP_WS_WRITE_TIMEOUT", "-1s"},
		{"NegativeWSReadTimeout", "APP_WS_READ_TIMEOUT", "-5s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
