package config

import (
	"errors"
	"fmt"
)

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Market == "" {
		return errors.New("market is required")
	}
	if cfg.Account == "" {
		return errors.New("account is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return errors.New("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	switch cfg.Oracle.Source {
	case "coinbase", "venue", "average":
	default:
		return fmt.Errorf("oracle.source must be coinbase|venue|average, got %q", cfg.Oracle.Source)
	}
	if cfg.Oracle.Symbol == "" {
		return errors.New("oracle.symbol is required")
	}
	return validateStrategy(cfg.Strategy)
}

func validateStrategy(s StrategyConfig) error {
	switch s.Type {
	case "skew", "always_replace":
	default:
		return fmt.Errorf("strategy.type must be skew|always_replace, got %q", s.Type)
	}
	if len(s.QuotersBps) == 0 {
		return errors.New("strategy.quotersBps is required")
	}
	for _, bps := range s.QuotersBps {
		if bps <= 0 {
			return fmt.Errorf("strategy.quotersBps entries must be > 0, got %f", bps)
		}
	}
	if s.Quantity <= 0 {
		return errors.New("strategy.quantity must be > 0")
	}
	if s.QuantityBpsPerLevel != nil && *s.QuantityBpsPerLevel < 0 {
		return errors.New("strategy.quantityBpsPerLevel must be >= 0")
	}
	if s.MaxPosition <= 0 {
		return errors.New("strategy.maxPosition must be > 0")
	}
	if s.PropSkewEntry < 0 || s.PropSkewExit < 0 {
		return errors.New("strategy.propSkewEntry/propSkewExit must be >= 0")
	}
	if s.PropMaintain < 0 || s.PropMaintain >= 1 {
		return errors.New("strategy.propMaintain must be in [0, 1)")
	}
	if s.CycleIntervalMs < 0 {
		return errors.New("strategy.cycleIntervalMs must be >= 0")
	}
	return nil
}
