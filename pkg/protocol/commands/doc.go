// Package commands 定义 vmbus 内置命令
//
// 内置命令：
//   - Text: 文本消息，接收端交给实现 TextReceiver 的宿主
//   - Ping: 探测往返时延，接收端通过 Replier 回复 Pong
//   - Pong: Ping 的回复，接收端把往返时延交给 PongReceiver
//
// 负载使用 protobuf well-known types 编码，命令帧本身由 internal/core/codec 负责。
// 宿主不实现某个能力接口时，对应命令在接收端被静默忽略。
package commands

import (
	"time"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// 命令类型名
const (
	TypeText = "vmbus.Text"
	TypePing = "vmbus.Ping"
	TypePong = "vmbus.Pong"
)

// TextReceiver 接收文本消息的宿主能力
type TextReceiver interface {
	ReceiveText(sender types.Address, body string)
}

// Replier 可以回复命令的宿主能力
//
// *bus.Bus 满足此接口，宿主通常内嵌或转发到总线。
type Replier interface {
	SendAsyncUnicast(cmd interfaces.Command, addr types.Address)
}

// PongReceiver 接收往返时延的宿主能力
type PongReceiver interface {
	ReceivePong(sender types.Address, rtt time.Duration)
}

// Factories 返回全部内置命令的工厂
func Factories() []interfaces.CommandFactory {
	return []interfaces.CommandFactory{
		func() interfaces.Command { return &Text{} },
		func() interfaces.Command { return &Ping{} },
		func() interfaces.Command { return &Pong{} },
	}
}
