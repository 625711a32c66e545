package interfaces

import "github.com/dep2p/go-vmbus/pkg/types"

// Host 宿主运行时
//
// 总线在连接表变化时回调 Host。对同一地址，MemberJoined 与 MemberLeft
// 严格交替出现，并按连接表的变更顺序投递。
// 回调运行在总线的事件分发协程上，可以在回调里再调用总线的发送接口。
type Host interface {
	// MemberJoined 一个节点加入（连接已注册）
	MemberJoined(addr types.Address)

	// MemberLeft 一个节点离开（连接已注销）
	MemberLeft(addr types.Address)
}

// HostFuncs 以函数形式实现 Host，常用于测试和简单场景
type HostFuncs struct {
	OnJoined func(addr types.Address)
	OnLeft   func(addr types.Address)
}

var _ Host = HostFuncs{}

// MemberJoined 实现 Host
func (h HostFuncs) MemberJoined(addr types.Address) {
	if h.OnJoined != nil {
		h.OnJoined(addr)
	}
}

// MemberLeft 实现 Host
func (h HostFuncs) MemberLeft(addr types.Address) {
	if h.OnLeft != nil {
		h.OnLeft(addr)
	}
}

// UnwrapHost 返回最内层的宿主
//
// 门面层会用自己的宿主包装用户宿主；自定义命令在 ExecuteUponReceipt 中
// 需要用户宿主的能力时，先调用 UnwrapHost。
func UnwrapHost(h Host) Host {
	for {
		u, ok := h.(interface{ Unwrap() Host })
		if !ok {
			return h
		}
		inner := u.Unwrap()
		if inner == nil {
			return h
		}
		h = inner
	}
}
