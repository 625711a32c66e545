package multicast

import (
	"context"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-vmbus/pkg/lib/log"
	"github.com/dep2p/go-vmbus/pkg/types"
)

var logger = log.Logger("core/discovery/multicast")

// ============================================================================
//                              Broadcaster
// ============================================================================

// Broadcaster 周期性发送本节点心跳
type Broadcaster struct {
	cfg     Config
	payload []byte
	opts    options
	limiter *rate.Limiter

	mu      sync.Mutex
	conn    net.PacketConn
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBroadcaster 创建心跳发送器
func NewBroadcaster(cfg Config, self types.Address, opts ...Option) *Broadcaster {
	return &Broadcaster{
		cfg:     cfg,
		payload: self.Bytes(),
		opts:    buildOptions(opts),
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		done:    make(chan struct{}),
	}
}

// Start 启动发送循环
//
// 立即发送一次心跳，之后每个周期发送一次。已停止的 Broadcaster 不会重新启动。
func (b *Broadcaster) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopped {
		return
	}
	b.started = true

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.loop(ctx)
}

func (b *Broadcaster) loop(ctx context.Context) {
	defer close(b.done)

	ticker := b.opts.clock.Ticker(b.cfg.Interval)
	defer ticker.Stop()

	b.send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.send()
		}
	}
}

// send 发送一次心跳，失败时关闭套接字等待下次重建
func (b *Broadcaster) send() {
	conn := b.socket()
	if conn == nil {
		return
	}

	_, err := conn.WriteTo(b.payload, b.cfg.Group)
	b.opts.reporter.LogHeartbeatSent(err)
	if err == nil {
		return
	}

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	stopped := b.stopped
	b.mu.Unlock()
	if !stopped {
		logger.Warn("发送心跳失败，关闭套接字", "group", b.cfg.Group, "error", err)
	}
	_ = conn.Close()
}

// socket 返回当前套接字，必要时按速率限制重建
func (b *Broadcaster) socket() net.PacketConn {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return nil
	}
	if b.conn != nil {
		return b.conn
	}
	if !b.limiter.Allow() {
		return nil
	}

	conn, err := b.opts.openSender(b.cfg)
	if err != nil {
		logger.Warn("创建心跳套接字失败", "error", err)
		b.opts.reporter.LogHeartbeatSent(err)
		return nil
	}
	b.conn = conn
	return conn
}

// Stop 停止发送循环并关闭套接字，重复调用返回 nil
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	started := b.started
	if b.cancel != nil {
		b.cancel()
	}
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if started {
		<-b.done
	}
	return err
}
