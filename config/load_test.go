package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
market: DOGE-PERP
account: mm-main
gateway:
  baseURL: https://api.venue.example
  wsURL: wss://api.venue.example/ws
  apiKey: k
  apiSecret: s
oracle:
  source: coinbase
  symbol: DOGE-USD
strategy:
  type: skew
  quotersBps: [30, 50, 100]
  quantity: 500
  maxPosition: 10000
  propSkewEntry: 0.5
  propSkewExit: 0.5
  propMaintain: 0.2
  cycleIntervalMs: 1000
reconcile:
  intervalSec: 60
statePath: /tmp/mm-state.json
logs:
  level: info
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Market != "DOGE-PERP" {
		t.Fatalf("market = %q", cfg.Market)
	}
	if len(cfg.Strategy.QuotersBps) != 3 {
		t.Fatalf("quotersBps = %v", cfg.Strategy.QuotersBps)
	}
	if cfg.CycleInterval() != time.Second {
		t.Fatalf("cycleInterval = %v", cfg.CycleInterval())
	}
	if cfg.ReconcileInterval() != time.Minute {
		t.Fatalf("reconcileInterval = %v", cfg.ReconcileInterval())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MM_GATEWAY_API_KEY", "env-key")
	t.Setenv("MM_GATEWAY_API_SECRET", "env-secret")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.APIKey != "env-key" || cfg.Gateway.APISecret != "env-secret" {
		t.Fatalf("env 覆盖未生效: %+v", cfg.Gateway)
	}
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing market", func(c *AppConfig) { c.Market = "" }},
		{"bad oracle source", func(c *AppConfig) { c.Oracle.Source = "chainlink" }},
		{"no quoter levels", func(c *AppConfig) { c.Strategy.QuotersBps = nil }},
		{"negative edge", func(c *AppConfig) { c.Strategy.QuotersBps = []float64{-10} }},
		{"zero quantity", func(c *AppConfig) { c.Strategy.Quantity = 0 }},
		{"zero max position", func(c *AppConfig) { c.Strategy.MaxPosition = 0 }},
		{"maintain out of range", func(c *AppConfig) { c.Strategy.PropMaintain = 1 }},
		{"bad quoter type", func(c *AppConfig) { c.Strategy.Type = "grid" }},
	}

	base, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range cases {
		cfg := base
		cfg.Strategy.QuotersBps = append([]float64(nil), base.Strategy.QuotersBps...)
		tc.mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: 应校验失败", tc.name)
		}
	}
}

func TestReconcileDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Reconcile.IntervalSec = 0
	if cfg.ReconcileInterval() != 0 {
		t.Fatal("intervalSec=0 应禁用对账")
	}
}
