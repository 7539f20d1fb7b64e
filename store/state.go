package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// ledgerStateFile 账本状态的持久化格式（新版）。
type ledgerStateFile struct {
	CurrentPosition string `json:"current_position"`
	QuotePosition   string `json:"quote_position"`
	LastUpdated     string `json:"last_updated"`
}

// LedgerState 从文件加载的账本标量状态。
type LedgerState struct {
	Position  decimal.Decimal
	QuoteFlow decimal.Decimal
}

// SaveLedgerState 写入账本状态，每次成交后调用。
func SaveLedgerState(path string, position, quoteFlow decimal.Decimal) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	raw, err := json.MarshalIndent(ledgerStateFile{
		CurrentPosition: position.String(),
		QuotePosition:   quoteFlow.String(),
		LastUpdated:     time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// LoadLedgerState 加载账本状态。兼容两种历史格式：
// total_position 单字段，以及 start_position + current_position 拆分，
// 两者都折算成单一累计仓位。文件不存在返回 (nil, nil)（首次运行）。
func LoadLedgerState(path string) (*LedgerState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}

	var position decimal.Decimal
	switch {
	case fields["total_position"] != nil:
		// 旧格式：单一累计字段
		position, err = decodeDecimal(fields["total_position"])
	case fields["start_position"] != nil:
		// 旧格式：起始 + 增量拆分
		var start, current decimal.Decimal
		start, err = decodeDecimal(fields["start_position"])
		if err == nil && fields["current_position"] != nil {
			current, err = decodeDecimal(fields["current_position"])
		}
		position = start.Add(current)
	default:
		position, err = decodeDecimal(fields["current_position"])
	}
	if err != nil {
		return nil, fmt.Errorf("parse position: %w", err)
	}

	var quoteFlow decimal.Decimal
	if fields["quote_position"] != nil {
		quoteFlow, err = decodeDecimal(fields["quote_position"])
		if err != nil {
			return nil, fmt.Errorf("parse quote_position: %w", err)
		}
	}

	return &LedgerState{Position: position, QuoteFlow: quoteFlow}, nil
}

// decodeDecimal 字符串或数字都接受（历史文件两种写法都有）。
func decodeDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decimal.NewFromString(s)
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
