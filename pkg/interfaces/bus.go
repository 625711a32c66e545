package interfaces

import (
	"context"

	"github.com/dep2p/go-vmbus/pkg/types"
)

// Bus 通信总线
//
// 由 internal/core/bus.Bus 实现。命令在 ExecuteUponReceipt 中需要回复时，
// 宿主可以把 Bus 暴露给命令（见 pkg/protocol/commands 的 Replier）。
type Bus interface {
	// Connect 绑定监听端口并开始发现，已连接时返回现有地址
	Connect(ctx context.Context) (types.Address, error)

	// Disconnect 停止发现并关闭所有连接，未连接时为空操作
	Disconnect(ctx context.Context) error

	// Address 返回本地地址，未连接时为零值
	Address() types.Address

	// Members 返回当前连接表中的地址快照
	Members() []types.Address

	// SendAsyncUnicast 尽力发送，失败只记录日志
	SendAsyncUnicast(cmd Command, addr types.Address)

	// SendAsyncMulticast 向快照中的所有成员尽力发送
	SendAsyncMulticast(cmd Command)

	// SendSynchronousUnicast 同步发送，写入传输层后返回
	SendSynchronousUnicast(cmd Command, addr types.Address) error
}
