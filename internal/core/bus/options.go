package bus

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-vmbus/internal/core/codec"
	"github.com/dep2p/go-vmbus/internal/core/discovery/multicast"
	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/internal/core/netaddr"
)

// Option 配置 Bus
type Option func(*Bus)

// WithRegistry 设置命令注册表，默认 codec.DefaultRegistry()
func WithRegistry(reg *codec.Registry) Option {
	return func(b *Bus) { b.registry = reg }
}

// WithSelector 设置本地地址选择策略，默认 netaddr.Default(AdvertiseIP)
func WithSelector(sel netaddr.Selector) Option {
	return func(b *Bus) { b.selector = sel }
}

// WithReporter 设置指标上报
func WithReporter(r metrics.Reporter) Option {
	return func(b *Bus) { b.reporter = r }
}

// WithClock 设置时钟（清扫与 lastSeen）
func WithClock(clk clock.Clock) Option {
	return func(b *Bus) { b.clock = clk }
}

// WithMulticastOptions 传递给多播发现组件的选项
func WithMulticastOptions(opts ...multicast.Option) Option {
	return func(b *Bus) { b.mcOpts = append(b.mcOpts, opts...) }
}
