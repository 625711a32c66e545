package tcp

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-vmbus/pkg/types"
)

var (
	// ErrHandshake 握手帧无效
	ErrHandshake = errors.New("tcp: invalid handshake")
)

// DialError 连接 master 失败
type DialError struct {
	Remote types.Address
	Err    error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("tcp: dial %s: %v", e.Remote, e.Err)
}

// Unwrap 解包错误
func (e *DialError) Unwrap() error {
	return e.Err
}
