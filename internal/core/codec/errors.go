package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrBadStreamHeader 对端流头不匹配
	ErrBadStreamHeader = errors.New("codec: bad stream header")

	// ErrUnknownCommand 注册表中没有该命令类型
	ErrUnknownCommand = errors.New("codec: unknown command type")

	// ErrFrameTooLarge 命令帧超过上限
	ErrFrameTooLarge = errors.New("codec: frame too large")

	// ErrDuplicateCommand 重复注册命令类型
	ErrDuplicateCommand = errors.New("codec: duplicate command type")
)

// CommandError 命令编解码错误
type CommandError struct {
	Type string // 命令类型
	Op   string // "encode" / "decode"
	Err  error
}

// Error 实现 error 接口
func (e *CommandError) Error() string {
	return fmt.Sprintf("codec: %s %q: %v", e.Op, e.Type, e.Err)
}

// Unwrap 支持 errors.Unwrap
func (e *CommandError) Unwrap() error {
	return e.Err
}
