package config

import "reflect"

// ChangeClass 配置变更的生效等级。
type ChangeClass int

const (
	// ChangeNone 无变化。
	ChangeNone ChangeClass = iota
	// ChangeLive 运行中直接生效（维持系数、周期间隔、对账间隔）。
	ChangeLive
	// ChangeReinit 需要重建报价器：撤掉现有报价、换一组报价器、继续运行。
	// 仓位账本与订单跟踪不受影响。
	ChangeReinit
	// ChangeRestart 需要整个进程重启（预言机来源、市场、网关地址、日志配置）。
	ChangeRestart
)

func (c ChangeClass) String() string {
	switch c {
	case ChangeNone:
		return "none"
	case ChangeLive:
		return "live"
	case ChangeReinit:
		return "reinit"
	case ChangeRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// Classify 比较新旧配置，返回需要的最高生效等级。
func Classify(old, next AppConfig) ChangeClass {
	class := ChangeNone

	// 日志器在进程启动时构建一次（格式/输出文件无法热切换），归重启级
	if old.Market != next.Market ||
		old.Account != next.Account ||
		old.Gateway != next.Gateway ||
		old.Oracle != next.Oracle ||
		old.StatePath != next.StatePath ||
		old.Metrics != next.Metrics ||
		old.Logs != next.Logs {
		return ChangeRestart
	}

	if !reflect.DeepEqual(old.Strategy.QuotersBps, next.Strategy.QuotersBps) ||
		old.Strategy.Type != next.Strategy.Type ||
		old.Strategy.Quantity != next.Strategy.Quantity ||
		!floatPtrEqual(old.Strategy.QuantityBpsPerLevel, next.Strategy.QuantityBpsPerLevel) ||
		old.Strategy.MaxPosition != next.Strategy.MaxPosition ||
		old.Strategy.PropSkewEntry != next.Strategy.PropSkewEntry ||
		old.Strategy.PropSkewExit != next.Strategy.PropSkewExit ||
		!floatPtrEqual(old.Strategy.OverrideStartPosition, next.Strategy.OverrideStartPosition) {
		class = ChangeReinit
	}

	if class == ChangeNone {
		if old.Strategy.PropMaintain != next.Strategy.PropMaintain ||
			old.Strategy.CycleIntervalMs != next.Strategy.CycleIntervalMs ||
			old.Reconcile != next.Reconcile {
			class = ChangeLive
		}
	}
	return class
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
