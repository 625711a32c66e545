package multicast

import (
	"context"
	"net"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/internal/core/transport/tcp"
	"github.com/dep2p/go-vmbus/pkg/types"
)

// Config 多播发现配置
type Config struct {
	// Group 多播组地址
	Group *net.UDPAddr

	// Interface 网卡名，为空时使用所有支持多播的网卡
	Interface string

	// Interval 心跳周期
	Interval time.Duration

	// TTL 多播 TTL
	TTL int

	// Loopback 是否接收本机发出的多播
	Loopback bool

	// DialTimeout 连接 master 的超时
	DialTimeout time.Duration
}

// ConfigFromUnified 从统一配置创建多播配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	group, err := cfg.Discovery.GroupAddr()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Group:       group,
		Interface:   cfg.Discovery.Interface,
		Interval:    cfg.Discovery.HeartbeatInterval.Duration(),
		TTL:         cfg.Discovery.TTL,
		Loopback:    cfg.Discovery.Loopback,
		DialTimeout: cfg.Transport.DialTimeout.Duration(),
	}, nil
}

// OpenFunc 创建心跳套接字
type OpenFunc func(cfg Config) (net.PacketConn, error)

// DialFunc 作为 slave 连接 master
type DialFunc func(ctx context.Context, self, remote types.Address, timeout time.Duration) (net.Conn, error)

// options 可替换的依赖
type options struct {
	openSender   OpenFunc
	openListener OpenFunc
	dial         DialFunc
	clock        clock.Clock
	reporter     metrics.Reporter
}

// Option 配置 Broadcaster / Listener
type Option func(*options)

// WithSenderSocket 替换发送套接字的创建方式
func WithSenderSocket(open OpenFunc) Option {
	return func(o *options) { o.openSender = open }
}

// WithListenerSocket 替换监听套接字的创建方式
func WithListenerSocket(open OpenFunc) Option {
	return func(o *options) { o.openListener = open }
}

// WithDialer 替换拨号函数
func WithDialer(dial DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithClock 替换时钟
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithReporter 设置指标上报
func WithReporter(r metrics.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

func buildOptions(opts []Option) options {
	o := options{
		openSender:   OpenSender,
		openListener: OpenListener,
		dial:         tcp.Dial,
		clock:        clock.New(),
		reporter:     metrics.NopReporter{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
