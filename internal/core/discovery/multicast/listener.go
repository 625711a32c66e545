package multicast

import (
	"context"
	"errors"
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/pkg/types"
)

const (
	// datagramBufferSize 接收缓冲区，大于 types.MaxAddressSize 以识别超长数据报
	datagramBufferSize = 2 * types.MaxAddressSize

	// foreignCacheSize 记录过日志的其他网络节点数上限
	foreignCacheSize = 256
)

// Membership 连接表
//
// 由总线实现。AddConnection 接管 conn 的所有权。
type Membership interface {
	UpdateTimeLastSeen(addr types.Address) bool
	AddConnection(addr types.Address, conn net.Conn)
}

// ============================================================================
//                              Listener
// ============================================================================

// Listener 接收多播心跳并发起连接
type Listener struct {
	cfg        Config
	self       types.Address
	membership Membership
	opts       options
	limiter    *rate.Limiter
	foreign    *lru.Cache[string, struct{}]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	conn    net.PacketConn
	started bool
	closed  bool
	dialing map[types.Address]struct{}
}

// NewListener 创建心跳监听器
func NewListener(cfg Config, self types.Address, membership Membership, opts ...Option) *Listener {
	foreign, _ := lru.New[string, struct{}](foreignCacheSize)
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		cfg:        cfg,
		self:       self,
		membership: membership,
		opts:       buildOptions(opts),
		limiter:    rate.NewLimiter(rate.Every(cfg.Interval), 1),
		foreign:    foreign,
		ctx:        ctx,
		cancel:     cancel,
		dialing:    make(map[types.Address]struct{}),
	}
}

// Start 打开套接字并启动接收循环
//
// 首次打开套接字失败时返回错误；之后的套接字错误在循环内重建处理。
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return nil
	}

	conn, err := l.opts.openListener(l.cfg)
	if err != nil {
		return err
	}
	l.conn = conn
	l.started = true

	l.wg.Add(1)
	go l.loop()
	return nil
}

func (l *Listener) loop() {
	defer l.wg.Done()

	buf := make([]byte, datagramBufferSize)
	for {
		conn, err := l.socket()
		if err != nil {
			return
		}
		if conn == nil {
			continue
		}

		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			logger.Warn("接收心跳失败，重建套接字", "error", err)
			l.dropSocket(conn)
			continue
		}
		l.handleDatagram(buf[:n])
	}
}

// socket 返回当前套接字，必要时等待速率限制后重建
//
// 已关闭时返回 context 错误；重建失败返回 (nil, nil)。
func (l *Listener) socket() (net.PacketConn, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	if err := l.limiter.Wait(l.ctx); err != nil {
		return nil, err
	}

	conn, err := l.opts.openListener(l.cfg)
	if err != nil {
		logger.Warn("重建心跳监听套接字失败", "error", err)
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = conn.Close()
		return nil, context.Canceled
	}
	l.conn = conn
	return conn, nil
}

func (l *Listener) dropSocket(conn net.PacketConn) {
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
	_ = conn.Close()
}

// handleDatagram 处理一个心跳数据报，返回处理结果
func (l *Listener) handleDatagram(b []byte) string {
	result := l.classify(b)
	l.opts.reporter.LogHeartbeatReceived(result)
	return result
}

func (l *Listener) classify(b []byte) string {
	addr, err := types.AddressFromBytes(b)
	if err != nil {
		logger.Debug("无法解码心跳", "size", len(b), "error", err)
		return metrics.HeartbeatInvalid
	}

	if !addr.InSameNetwork(l.self) {
		if seen, _ := l.foreign.ContainsOrAdd(addr.String(), struct{}{}); !seen {
			logger.Info("忽略其他网络的节点", "peer", addr, "network", addr.Network())
		}
		return metrics.HeartbeatForeign
	}

	if addr == l.self {
		return metrics.HeartbeatSelf
	}

	if l.membership.UpdateTimeLastSeen(addr) {
		return metrics.HeartbeatKnown
	}

	role, err := Elect(l.self, addr)
	if err != nil {
		logger.Error("地址冲突，忽略心跳", "self", l.self, "peer", addr, "error", err)
		return metrics.HeartbeatConflict
	}
	if role == Master {
		logger.Debug("发现新节点，等待其连接", "peer", addr)
		return metrics.HeartbeatWait
	}

	l.startDial(addr)
	return metrics.HeartbeatDial
}

// startDial 在后台连接 master，同一节点同时只有一个拨号
func (l *Listener) startDial(remote types.Address) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if _, ok := l.dialing[remote]; ok {
		l.mu.Unlock()
		return
	}
	l.dialing[remote] = struct{}{}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.dialing, remote)
			l.mu.Unlock()
		}()

		logger.Debug("发现新节点，作为 slave 发起连接", "peer", remote)
		conn, err := l.opts.dial(l.ctx, l.self, remote, l.cfg.DialTimeout)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Warn("连接 master 失败", "peer", remote, "error", err)
			}
			return
		}
		if l.ctx.Err() != nil {
			_ = conn.Close()
			return
		}
		l.membership.AddConnection(remote, conn)
	}()
}

// Close 关闭套接字并等待接收循环和拨号协程退出，重复调用返回 nil
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.cancel()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	l.wg.Wait()
	return err
}
