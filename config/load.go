// Package config 加载、校验做市代理配置，并对变更做热更新分级。
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Market    string          `yaml:"market"`  // 如 "DOGE-PERP"
	Account   string          `yaml:"account"` // 余额查询用的账户标识
	Gateway   GatewayConfig   `yaml:"gateway"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	StatePath string          `yaml:"statePath"` // 仓位账本持久化文件
	Logs      LogConfig       `yaml:"logs"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type GatewayConfig struct {
	BaseURL   string `yaml:"baseURL"`
	WSURL     string `yaml:"wsURL"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

type OracleConfig struct {
	Source string `yaml:"source"` // coinbase | venue | average
	Symbol string `yaml:"symbol"` // 外部参考价符号，如 "DOGE-USD"
}

// StrategyConfig 报价策略参数。
type StrategyConfig struct {
	Type                string    `yaml:"type"`       // skew | always_replace
	QuotersBps          []float64 `yaml:"quotersBps"` // 每个报价层级的基准边际
	Quantity            float64   `yaml:"quantity"`   // 每层下单数量（base）
	QuantityBpsPerLevel *float64  `yaml:"quantityBpsPerLevel,omitempty"`
	MaxPosition         float64   `yaml:"maxPosition"`
	PropSkewEntry       float64   `yaml:"propSkewEntry"`
	PropSkewExit        float64   `yaml:"propSkewExit"`
	PropMaintain        float64   `yaml:"propMaintain"`
	CycleIntervalMs     int       `yaml:"cycleIntervalMs"`
	// OverrideStartPosition 非空时覆盖持久化仓位（手工校准入口）
	OverrideStartPosition *float64 `yaml:"overrideStartPosition,omitempty"`
}

type ReconcileConfig struct {
	IntervalSec int    `yaml:"intervalSec"` // 0 = 禁用
	AuditPath   string `yaml:"auditPath"`   // 空 = 不写审计库
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"outputFile"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 空 = 不启动指标服务
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MM_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("MM_GATEWAY_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return cfg, Validate(cfg)
}

// CycleInterval 决策周期，带默认值。
func (c AppConfig) CycleInterval() time.Duration {
	if c.Strategy.CycleIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.Strategy.CycleIntervalMs) * time.Millisecond
}

// ReconcileInterval 对账周期，0 表示禁用。
func (c AppConfig) ReconcileInterval() time.Duration {
	if c.Reconcile.IntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.Reconcile.IntervalSec) * time.Second
}

// GatewayTimeout REST 超时，带默认值。
func (c AppConfig) GatewayTimeout() time.Duration {
	if c.Gateway.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Gateway.TimeoutMs) * time.Millisecond
}
