package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/codec"
	"github.com/dep2p/go-vmbus/internal/core/discovery/multicast"
	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/internal/core/netaddr"
	"github.com/dep2p/go-vmbus/internal/core/transport/tcp"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/lib/log"
	"github.com/dep2p/go-vmbus/pkg/types"
)

var logger = log.Logger("core/bus")

// 确保实现接口
var (
	_ interfaces.Bus       = (*Bus)(nil)
	_ tcp.ConnectionSink   = (*Bus)(nil)
	_ multicast.Membership = (*Bus)(nil)
)

// Bus 通信总线
type Bus struct {
	cfg      *config.Config
	host     interfaces.Host
	registry *codec.Registry
	selector netaddr.Selector
	reporter metrics.Reporter
	clock    clock.Clock
	mcOpts   []multicast.Option

	events *dispatcher

	// 生命周期
	lifecycleMu sync.Mutex
	connected   atomic.Bool
	self        atomic.Pointer[types.Address]
	acceptor    *tcp.Acceptor
	broadcaster *multicast.Broadcaster
	listener    *multicast.Listener
	sweepCancel context.CancelFunc
	workers     sync.WaitGroup
	processors  sync.WaitGroup

	// 连接表
	mu      sync.Mutex
	conns   map[types.Address]*connection
	pending map[net.Conn]struct{} // 正在建立命令流的套接字
}

// New 创建总线，创建后处于 Disconnected 状态
func New(cfg *config.Config, host interfaces.Host, opts ...Option) (*Bus, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if host == nil {
		host = interfaces.HostFuncs{}
	}

	b := &Bus{
		cfg:     cfg,
		host:    host,
		conns:   make(map[types.Address]*connection),
		pending: make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.registry == nil {
		b.registry = codec.DefaultRegistry()
	}
	if b.selector == nil {
		sel, err := netaddr.Default(cfg.Transport.AdvertiseIP)
		if err != nil {
			return nil, err
		}
		b.selector = sel
	}
	if b.reporter == nil {
		b.reporter = metrics.NopReporter{}
	}
	if b.clock == nil {
		b.clock = clock.New()
	}
	b.mcOpts = append([]multicast.Option{
		multicast.WithReporter(b.reporter),
	}, b.mcOpts...)

	b.events = newDispatcher(host)
	return b, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Connect 绑定监听端口并开始发现
//
// 已连接时直接返回当前地址。绑定失败返回 *NetworkError（ErrBind），
// 总线保持 Disconnected 且不启动任何协程。
func (b *Bus) Connect(ctx context.Context) (types.Address, error) {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.connected.Load() {
		return *b.self.Load(), nil
	}
	if err := ctx.Err(); err != nil {
		return types.Address{}, &NetworkError{Op: "connect", Err: err}
	}

	acceptor, self, err := tcp.Listen(b.cfg, b.selector, b)
	if err != nil {
		return types.Address{}, &NetworkError{Op: "connect", Err: fmt.Errorf("%w: %w", ErrBind, err)}
	}

	mcCfg, err := multicast.ConfigFromUnified(b.cfg)
	if err != nil {
		_ = acceptor.Close()
		return types.Address{}, &NetworkError{Op: "connect", Err: err}
	}

	listener := multicast.NewListener(mcCfg, self, b, b.mcOpts...)
	if err := listener.Start(); err != nil {
		_ = acceptor.Close()
		return types.Address{}, &NetworkError{Op: "connect", Err: fmt.Errorf("%w: multicast: %w", ErrBind, err)}
	}

	b.acceptor = acceptor
	b.listener = listener
	b.broadcaster = multicast.NewBroadcaster(mcCfg, self, b.mcOpts...)
	b.self.Store(&self)
	b.connected.Store(true)

	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		if err := acceptor.Serve(); err != nil {
			logger.Error("接受循环异常退出", "error", err)
		}
	}()

	b.broadcaster.Start()

	sweepCtx, cancel := context.WithCancel(context.Background())
	b.sweepCancel = cancel
	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		b.sweepLoop(sweepCtx)
	}()

	logger.Info("总线已连接", "address", self, "group", mcCfg.Group)
	return self, nil
}

// Disconnect 停止发现并关闭所有连接
//
// 未连接时返回 nil。先切换到 Disconnected，再关闭套接字、停止后台协程，
// 最后等待所有协程退出（受 ctx 限制）。
func (b *Bus) Disconnect(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if !b.connected.Swap(false) {
		return nil
	}
	self := b.self.Swap(nil)

	// 表项的删除仍由各自的处理协程完成
	b.mu.Lock()
	pending := make([]net.Conn, 0, len(b.pending))
	for sock := range b.pending {
		pending = append(pending, sock)
	}
	live := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		live = append(live, c)
	}
	b.mu.Unlock()

	var err error
	for _, sock := range pending {
		err = multierr.Append(err, ignoreClosed(sock.Close()))
	}
	for _, c := range live {
		err = multierr.Append(err, ignoreClosed(c.close()))
	}

	b.sweepCancel()
	err = multierr.Combine(err,
		b.broadcaster.Stop(),
		b.listener.Close(),
		b.acceptor.Close(),
	)

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		b.processors.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}

	logger.Info("总线已断开", "address", self, "closed", len(live))
	return err
}

// Close 断开并停止事件分发
//
// 返回前投递完已入队的事件；在宿主回调中调用时不等待投递完成。
func (b *Bus) Close(ctx context.Context) error {
	err := b.Disconnect(ctx)
	b.events.close()
	return err
}

// IsConnected 是否处于 Connected 状态，无锁读取
func (b *Bus) IsConnected() bool {
	return b.connected.Load()
}

// Address 返回本地地址，未连接时为零值
func (b *Bus) Address() types.Address {
	if p := b.self.Load(); p != nil {
		return *p
	}
	return types.Address{}
}

// Members 返回连接表中的地址快照（按 Compare 排序）
func (b *Bus) Members() []types.Address {
	b.mu.Lock()
	members := make([]types.Address, 0, len(b.conns))
	for addr := range b.conns {
		members = append(members, addr)
	}
	b.mu.Unlock()

	sort.Slice(members, func(i, j int) bool { return members[i].Compare(members[j]) < 0 })
	return members
}

// Stats 返回命令流字节统计，指标关闭时为零值
func (b *Bus) Stats() metrics.Stats {
	return b.reporter.Totals()
}

// ============================================================================
//                              连接表
// ============================================================================

// AddConnection 建立命令流并登记连接
//
// 总线未连接时关闭 sock。同一地址已有连接时替换并静默关闭旧连接，不产生事件；
// 否则产生 MemberJoined。之后启动该连接的处理协程。
func (b *Bus) AddConnection(addr types.Address, sock net.Conn) {
	if !b.trackPending(sock) {
		_ = sock.Close()
		return
	}

	c, err := b.newConnection(addr, sock)
	b.untrackPending(sock)
	if err != nil {
		if b.connected.Load() {
			logger.Warn("建立命令流失败", "peer", addr, "error", err)
		}
		_ = sock.Close()
		return
	}

	b.mu.Lock()
	if !b.connected.Load() {
		b.mu.Unlock()
		_ = c.close()
		return
	}
	old, replaced := b.conns[addr]
	b.conns[addr] = c
	if !replaced {
		b.events.enqueue(event{joined: true, addr: addr})
		b.reporter.LogMemberJoined(len(b.conns))
	}
	b.processors.Add(1)
	b.mu.Unlock()

	if replaced {
		logger.Debug("替换已有连接", "peer", addr, "old", old.shortID(), "new", c.shortID())
		_ = old.close()
	} else {
		logger.Info("节点加入", "peer", addr, "session", c.shortID())
	}

	go b.process(c)
}

func (b *Bus) trackPending(sock net.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected.Load() {
		return false
	}
	b.pending[sock] = struct{}{}
	return true
}

func (b *Bus) untrackPending(sock net.Conn) {
	b.mu.Lock()
	delete(b.pending, sock)
	b.mu.Unlock()
}

// RemoveConnection 注销连接
//
// 只有当前表项包装的正是 sock 时才删除并产生 MemberLeft。
func (b *Bus) RemoveConnection(addr types.Address, sock net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[addr]
	if !ok || c.sock != sock {
		return
	}
	delete(b.conns, addr)
	b.events.enqueue(event{joined: false, addr: addr})
	b.reporter.LogMemberLeft(len(b.conns))
	logger.Info("节点离开", "peer", addr, "session", c.shortID())
}

// UpdateTimeLastSeen 刷新节点的最近心跳时间，节点不在连接表中时返回 false
func (b *Bus) UpdateTimeLastSeen(addr types.Address) bool {
	b.mu.Lock()
	c, ok := b.conns[addr]
	b.mu.Unlock()
	if ok {
		c.touch(b.clock.Now())
	}
	return ok
}

func (b *Bus) lookup(addr types.Address) *connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[addr]
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
