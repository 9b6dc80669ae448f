package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Quota.DailyLimit != 10000 {
		t.Errorf("got quota limit %d, want 10000", cfg.Quota.DailyLimit)
	}
	if cfg.Indexing.ChunkSize != 1000 {
		t.Errorf("got chunk size %d, want 1000", cfg.Indexing.ChunkSize)
	}
	if cfg.Indexing.ShortDurationSeconds != 60 {
		t.Errorf("got short threshold %d, want 60", cfg.Indexing.ShortDurationSeconds)
	}
	if cfg.Query.OverfetchFactor != 3 {
		t.Errorf("got overfetch factor %d, want 3", cfg.Query.OverfetchFactor)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RAGMAKER_QUOTA_LIMIT", "500")
	t.Setenv("RAGMAKER_CHUNK_SIZE", "800")
	t.Setenv("RAGMAKER_QUOTA_DISPATCH_GAP", "1s")
	t.Setenv("RAGMAKER_NAMESPACE", "team1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Quota.DailyLimit != 500 {
		t.Errorf("got quota limit %d, want 500", cfg.Quota.DailyLimit)
	}
	if cfg.Indexing.ChunkSize != 800 {
		t.Errorf("got chunk size %d, want 800", cfg.Indexing.ChunkSize)
	}
	if cfg.Quota.MinDispatchGap != time.Second {
		t.Errorf("got dispatch gap %v, want 1s", cfg.Quota.MinDispatchGap)
	}
	if cfg.Indexing.Namespace != "team1" {
		t.Errorf("got namespace %q, want team1", cfg.Indexing.Namespace)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero quota limit", func(c *Config) { c.Quota.DailyLimit = 0 }},
		{"warning above critical", func(c *Config) { c.Quota.WarningFraction = 0.99; c.Quota.CriticalFraction = 0.5 }},
		{"overlap >= chunk size", func(c *Config) { c.Indexing.ChunkOverlap = c.Indexing.ChunkSize }},
		{"overfetch below 1", func(c *Config) { c.Query.OverfetchFactor = 0 }},
		{"bad timezone", func(c *Config) { c.Quota.ResetTimezone = "Mars/Olympus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidate_MalformedEnvFallsBack(t *testing.T) {
	t.Setenv("RAGMAKER_QUOTA_LIMIT", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Quota.DailyLimit != 10000 {
		t.Errorf("got quota limit %d, want default 10000", cfg.Quota.DailyLimit)
	}
}
