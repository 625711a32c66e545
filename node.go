package vmbus

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/bus"
	"github.com/dep2p/go-vmbus/pkg/lib/log"
	"github.com/dep2p/go-vmbus/pkg/protocol/commands"
)

var logger = log.Logger("vmbus")

const (
	// initializeTimeout Fx 应用启动超时
	initializeTimeout = 30 * time.Second

	// closeTimeout Close 使用的停止超时
	closeTimeout = 10 * time.Second
)

// State 节点状态
type State int32

const (
	// StateIdle 已创建，未启动
	StateIdle State = iota
	// StateRunning 运行中
	StateRunning
	// StateStopped 已停止
	StateStopped
	// StateClosed 已关闭
	StateClosed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Node vmbus 节点
//
// Node 是面向用户的门面，内部由 Fx 组装 netaddr、metrics 与 bus。
// 发送接口可以在宿主回调中调用。
type Node struct {
	config *config.Config
	app    *fx.App

	bus      atomic.Pointer[bus.Bus]
	gatherer prometheus.Gatherer
	logFile  *os.File

	// mu 串行化生命周期转换；发送路径只读取 state
	mu    sync.Mutex
	state atomic.Int32
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建新节点
//
// 创建节点但不启动，需要调用 Start() 启动。
//
// 示例：
//
//	node, err := vmbus.New(ctx,
//	    vmbus.WithPreset(vmbus.PresetNameLocal),
//	    vmbus.WithNetworkName("demo"),
//	)
func New(_ context.Context, opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{config: o.toInternalConfig()}

	if o.logFile != "" {
		f, err := setupLogFile(o.logFile)
		if err != nil {
			return nil, err
		}
		node.logFile = f
	}

	app, err := buildFxApp(node.config, o, node)
	if err != nil {
		node.closeLogFile()
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	node.app = app
	return node, nil
}

// Start 快捷启动函数
//
// 创建节点并立即启动，等价于 New() + Start()。
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if err := node.Start(ctx); err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("start node: %w", err)
	}

	return node, nil
}

// setupLogFile 打开日志文件（追加模式）并重定向日志输出
func setupLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // G304: 用户指定的日志路径
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	log.SetOutputWithLevel(f, log.LevelFromEnv())
	logger.Info("日志文件初始化成功", "path", path)
	return f, nil
}

func (n *Node) closeLogFile() error {
	if n.logFile == nil {
		return nil
	}
	log.SetOutputWithLevel(os.Stderr, log.LevelFromEnv())
	err := n.logFile.Close()
	n.logFile = nil
	return err
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 绑定监听端口、加入多播组并开始广播心跳。
// Fx 应用只能启动一次，停止后再次 Start 返回 ErrNodeClosed。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.State() {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped, StateClosed:
		return ErrNodeClosed
	}

	logger.Info("正在启动节点", "network", n.config.NetworkName)

	initCtx, initCancel := context.WithTimeout(ctx, initializeTimeout)
	defer initCancel()

	// 启动 Fx 应用（调用所有模块的 OnStart）
	if err := n.app.Start(initCtx); err != nil {
		logger.Error("节点启动失败", "error", err)
		n.state.Store(int32(StateStopped))
		return fmt.Errorf("initialize failed: %w", err)
	}

	n.state.Store(int32(StateRunning))
	logger.Info("节点已启动", "address", n.Address())
	return nil
}

// Stop 停止节点
//
// 断开所有连接并停止发现。ctx 限制等待后台协程退出的时间。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.State() {
	case StateIdle:
		return ErrNotStarted
	case StateStopped, StateClosed:
		return ErrNodeClosed
	}

	n.state.Store(int32(StateStopped))
	logger.Info("正在停止节点")

	// 停止 Fx 应用（按反向顺序调用 OnStop）
	if err := n.app.Stop(ctx); err != nil {
		logger.Error("停止节点失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}

	logger.Info("节点已停止")
	return nil
}

// Close 关闭节点并释放所有资源
//
// 与 Stop 的区别：Close 同时关闭日志文件，且可以重复调用。
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev := State(n.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}

	var err error
	if prev == StateRunning {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		err = n.app.Stop(ctx)
		cancel()
	}
	err = multierr.Append(err, n.closeLogFile())

	logger.Info("节点已关闭")
	return err
}

// State 返回节点状态
func (n *Node) State() State {
	return State(n.state.Load())
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// Config 返回节点配置的副本
func (n *Node) Config() *config.Config {
	return n.config.Clone()
}

// Address 返回本地地址，未运行时为零值
func (n *Node) Address() Address {
	if b := n.bus.Load(); b != nil {
		return b.Address()
	}
	return Address{}
}

// Members 返回当前成员快照
func (n *Node) Members() []Address {
	b, err := n.runningBus()
	if err != nil {
		return nil
	}
	return b.Members()
}

// Stats 返回累计字节数与最近 60 秒的字节速率
//
// 节点未运行或指标关闭时返回零值。
func (n *Node) Stats() Stats {
	b, err := n.runningBus()
	if err != nil {
		return Stats{}
	}
	return b.Stats()
}

// Gatherer 返回 Prometheus 指标源
//
// 指标关闭时仍返回注册表，只是不含 vmbus 指标。
func (n *Node) Gatherer() prometheus.Gatherer {
	return n.gatherer
}

// ════════════════════════════════════════════════════════════════════════════
//                              发送
// ════════════════════════════════════════════════════════════════════════════

func (n *Node) runningBus() (*bus.Bus, error) {
	switch n.State() {
	case StateIdle:
		return nil, ErrNotStarted
	case StateStopped, StateClosed:
		return nil, ErrNodeClosed
	}
	b := n.bus.Load()
	if b == nil {
		return nil, ErrNotStarted
	}
	return b, nil
}

// Send 同步发送命令，写入传输层后返回
//
// 目标不在连接表中时返回 ErrRecipientOffline，写入失败返回 ErrTransmission。
func (n *Node) Send(cmd Command, addr Address) error {
	b, err := n.runningBus()
	if err != nil {
		return err
	}
	return b.SendSynchronousUnicast(cmd, addr)
}

// SendAsync 尽力发送命令，发送失败只记录日志
func (n *Node) SendAsync(cmd Command, addr Address) error {
	b, err := n.runningBus()
	if err != nil {
		return err
	}
	b.SendAsyncUnicast(cmd, addr)
	return nil
}

// Broadcast 向所有成员尽力发送命令
func (n *Node) Broadcast(cmd Command) error {
	b, err := n.runningBus()
	if err != nil {
		return err
	}
	b.SendAsyncMulticast(cmd)
	return nil
}

// SendText 同步发送文本消息
func (n *Node) SendText(addr Address, body string) error {
	return n.Send(commands.NewText(body), addr)
}

// BroadcastText 向所有成员广播文本消息
func (n *Node) BroadcastText(body string) error {
	return n.Broadcast(commands.NewText(body))
}

// Ping 向一个成员发送 Ping，往返时延通过宿主的 ReceivePong 报告
func (n *Node) Ping(addr Address) error {
	return n.SendAsync(commands.NewPing(), addr)
}

// PingAll 向所有成员发送 Ping
func (n *Node) PingAll() error {
	return n.Broadcast(commands.NewPing())
}
