package bus

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-vmbus/internal/core/codec"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/lib/log"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// connection 连接表中的一条连接
type connection struct {
	id   string
	addr types.Address
	sock net.Conn

	writeMu sync.Mutex
	enc     *codec.Encoder
	dec     *codec.Decoder

	lastSeen  atomic.Int64 // UnixNano
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// newConnection 建立命令流
//
// 先构造 Encoder（写出并刷新本端流头），再构造 Decoder（读取对端流头）。
// 整个过程受 timeout 限制。
func (b *Bus) newConnection(addr types.Address, sock net.Conn) (*connection, error) {
	timeout := b.cfg.Transport.HandshakeTimeout.Duration()
	maxFrame := b.cfg.Transport.MaxFrameSize

	if timeout > 0 {
		_ = sock.SetDeadline(time.Now().Add(timeout))
	}
	enc, err := codec.NewEncoder(sock, maxFrame)
	if err != nil {
		return nil, err
	}
	dec, err := codec.NewDecoder(&countingReader{r: sock, report: b.reporter.LogRecvBytes}, b.registry, maxFrame)
	if err != nil {
		return nil, err
	}
	_ = sock.SetDeadline(time.Time{})

	c := &connection{
		id:   uuid.NewString(),
		addr: addr,
		sock: sock,
		enc:  enc,
		dec:  dec,
	}
	c.touch(b.clock.Now())
	return c, nil
}

// send 写入一个命令，返回帧字节数
func (c *connection) send(cmd interfaces.Command) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(cmd)
}

func (c *connection) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

func (c *connection) lastSeenAt() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// close 关闭套接字，只执行一次
func (c *connection) close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.sock.Close()
	})
	return c.closeErr
}

// shortID 日志中显示的会话 ID
func (c *connection) shortID() string {
	return log.TruncateID(c.id, 8)
}

// countingReader 统计读取字节数
type countingReader struct {
	r      io.Reader
	report func(int)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.report(n)
	}
	return n, err
}
