package gateway

import (
	"errors"
	"fmt"
)

// Kind 网关错误分类，决定调用方的恢复策略。
type Kind int

const (
	// KindTransient 瞬时连接问题：退避重试，warn 级别。
	KindTransient Kind = iota + 1
	// KindOrderRejected 单笔订单被拒：不影响批次里其他订单，warn 级别。
	KindOrderRejected
	// KindAuthorization 鉴权问题：上报并跳过本次操作，不盲目重试。
	KindAuthorization
	// KindTransaction 交易失败：error 级别，触发一个周期的暂停。
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindOrderRejected:
		return "order_rejected"
	case KindAuthorization:
		return "authorization"
	case KindTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Error 带分类的网关错误。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 提取错误分类；非网关错误按瞬时处理（保守：重试而不是崩）。
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

func IsTransient(err error) bool     { return KindOf(err) == KindTransient }
func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }
