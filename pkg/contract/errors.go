package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 组件选项或调用参数不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrSourceInvalid: 候选来源结构不合法（缺列、表不存在等）。
	ErrSourceInvalid = errors.New("source invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
