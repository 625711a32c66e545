package vmbus

import (
	"errors"

	"github.com/dep2p/go-vmbus/internal/core/bus"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ErrUnknownPreset 未知的预设名称
	ErrUnknownPreset = errors.New("unknown preset")

	// ────────────────────────────────────────────────────────────────────────
	// 总线错误（可用 errors.Is 判断）
	// ────────────────────────────────────────────────────────────────────────

	// ErrBind 监听端口或多播组绑定失败
	ErrBind = bus.ErrBind

	// ErrTransmission 命令写入失败
	ErrTransmission = bus.ErrTransmission

	// ErrRecipientOffline 目标地址不在连接表中
	ErrRecipientOffline = bus.ErrRecipientOffline
)
