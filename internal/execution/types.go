package execution

import (
	"paper-trades/internal/account"
	"paper-trades/internal/oracle"
)

// ActionResult 记录单条指令的执行结果。
// Executed 为 false 时 Err 说明跳过或失败的原因。
type ActionResult struct {
	Action   oracle.Action
	Executed bool
	Err      error
	Opened   *account.Position
	Closed   []account.Trade
}

// ExecutedCount 统计一批结果里成功执行的指令数量。
func ExecutedCount(results []ActionResult) int {
	count := 0
	for _, result := range results {
		if result.Executed {
			count++
		}
	}
	return count
}
