package tcp

import (
	"context"
	"net"
	"time"

	"github.com/dep2p/go-vmbus/pkg/types"
)

// keepAlivePeriod TCP keepalive 周期
const keepAlivePeriod = 15 * time.Second

// Dial 作为 slave 连接 master 并发送握手帧
//
// timeout 同时限制建立连接和写出握手帧。
func Dial(ctx context.Context, self, remote types.Address, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: keepAlivePeriod,
	}

	conn, err := dialer.DialContext(ctx, "tcp", remote.HostPort())
	if err != nil {
		return nil, &DialError{Remote: remote, Err: err}
	}
	setSocketOptions(conn)

	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := WriteHandshake(conn, self); err != nil {
		_ = conn.Close()
		return nil, &DialError{Remote: remote, Err: err}
	}
	_ = conn.SetWriteDeadline(time.Time{})

	logger.Debug("已连接 master", "remote", remote)
	return conn, nil
}

func setSocketOptions(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
	}
}
