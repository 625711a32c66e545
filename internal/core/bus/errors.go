package bus

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-vmbus/pkg/types"
)

var (
	// ErrBind 无法绑定监听端口或多播套接字
	ErrBind = errors.New("bind failed")

	// ErrTransmission 发送过程中的 I/O 错误
	ErrTransmission = errors.New("transmission failed")

	// ErrRecipientOffline 目标不在连接表中
	ErrRecipientOffline = errors.New("recipient offline")

	// ErrNotConnected 总线未连接，errors.Is(err, ErrRecipientOffline) 同样成立
	ErrNotConnected = fmt.Errorf("%w: bus not connected", ErrRecipientOffline)
)

// NetworkError 总线操作错误
type NetworkError struct {
	Op   string        // "connect" / "send"
	Peer types.Address // 相关节点，connect 时为零值
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Peer.IsZero() {
		return fmt.Sprintf("vmbus: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vmbus: %s %s: %v", e.Op, e.Peer, e.Err)
}

// Unwrap 解包错误
func (e *NetworkError) Unwrap() error {
	return e.Err
}
