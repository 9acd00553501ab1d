package account

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize 仓位名义价值必须为正。
	ErrInvalidSize = errors.New("account: 仓位大小必须为正")
	// ErrInvalidPrice 价格必须为正。
	ErrInvalidPrice = errors.New("account: 价格必须为正")
	// ErrInvalidLeverage 杠杆超出允许范围。
	ErrInvalidLeverage = errors.New("account: 杠杆超出允许范围")
)

// InsufficientCapitalError 表示所需保证金超出可用资金，开仓被拒绝。
type InsufficientCapitalError struct {
	Symbol    string
	Required  float64
	Available float64
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("account: 可用资金不足，开仓 %s 需要保证金 %.2f，当前可用 %.2f",
		e.Symbol, e.Required, e.Available)
}

// UnknownPositionError 表示指定的仓位不存在。
type UnknownPositionError struct {
	ID string
}

func (e *UnknownPositionError) Error() string {
	return fmt.Sprintf("account: 仓位 %s 不存在", e.ID)
}
