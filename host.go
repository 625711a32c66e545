package vmbus

import (
	"time"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/protocol/commands"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// nodeHost 总线看到的宿主
//
// 成员事件与内置命令转发给用户宿主；Ping 的回复经由节点的总线发出。
type nodeHost struct {
	user interfaces.Host
	node *Node
}

var (
	_ interfaces.Host       = (*nodeHost)(nil)
	_ commands.Replier      = (*nodeHost)(nil)
	_ commands.TextReceiver = (*nodeHost)(nil)
	_ commands.PongReceiver = (*nodeHost)(nil)
)

// MemberJoined 实现 Host
func (h *nodeHost) MemberJoined(addr types.Address) {
	logger.Info("成员加入", "peer", addr)
	if h.user != nil {
		h.user.MemberJoined(addr)
	}
}

// MemberLeft 实现 Host
func (h *nodeHost) MemberLeft(addr types.Address) {
	logger.Info("成员离开", "peer", addr)
	if h.user != nil {
		h.user.MemberLeft(addr)
	}
}

// Unwrap 返回用户宿主，供 interfaces.UnwrapHost 使用
func (h *nodeHost) Unwrap() interfaces.Host {
	return h.user
}

// SendAsyncUnicast 实现 commands.Replier
func (h *nodeHost) SendAsyncUnicast(cmd interfaces.Command, addr types.Address) {
	if b := h.node.bus.Load(); b != nil {
		b.SendAsyncUnicast(cmd, addr)
	}
}

// ReceiveText 实现 commands.TextReceiver
func (h *nodeHost) ReceiveText(sender types.Address, body string) {
	if r, ok := h.user.(commands.TextReceiver); ok {
		r.ReceiveText(sender, body)
		return
	}
	logger.Debug("宿主未处理文本消息", "sender", sender, "len", len(body))
}

// ReceivePong 实现 commands.PongReceiver
func (h *nodeHost) ReceivePong(sender types.Address, rtt time.Duration) {
	if r, ok := h.user.(commands.PongReceiver); ok {
		r.ReceivePong(sender, rtt)
		return
	}
	logger.Debug("往返时延", "peer", sender, "rtt", rtt)
}
