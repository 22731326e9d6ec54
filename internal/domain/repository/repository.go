// Package repository 定义数据访问层接口
package repository

import (
	"errors"
)

// ErrInvalidTransition 条件更新未命中任何行：任务不存在或当前状态不允许该迁移
var ErrInvalidTransition = errors.New("invalid status transition")
