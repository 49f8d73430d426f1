package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 19998", func(c *Config) bool { return c.Port == 19998 }},
		{"API key auth enabled by default", func(c *Config) bool { return c.EnableAPIKeyAuth }},
		{"debug off by default", func(c *Config) bool { return !c.Debug }},
		{"default data dir", func(c *Config) bool { return c.DataDir == "./data" }},
		{"default cache dir", func(c *Config) bool { return c.CacheDir == "./cache" }},
		{"default log dir", func(c *Config) bool { return c.LogDir == "./logs" }},
		{"default queue tick interval", func(c *Config) bool { return c.QueueTickInterval == time.Second }},
		{"default monitor interval", func(c *Config) bool { return c.MonitorCheckInterval == 60*time.Second }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:19998" }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("check failed for %s", tt.name)
			}
		})
	}
}

func TestLoad_RejectsMonitorIntervalBelowFloor(t *testing.T) {
	t.Setenv("MONITOR_CHECK_INTERVAL", "10s")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error for MONITOR_CHECK_INTERVAL below 30s")
	}
}
