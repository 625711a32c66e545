package vmbus

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
)

// Option 节点配置选项
type Option func(*options) error

// options 节点选项
type options struct {
	// 基础配置（预设或 WithConfig），为空时使用 config.NewConfig()
	base *config.Config

	// 覆盖项，在 base 之后按调用顺序应用
	overrides []func(*config.Config)

	host     interfaces.Host
	commands []interfaces.CommandFactory
	registry *prometheus.Registry
	logFile  string

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// toInternalConfig 转换为内部配置
func (o *options) toInternalConfig() *config.Config {
	var cfg *config.Config
	if o.base != nil {
		cfg = o.base.Clone()
	} else {
		cfg = config.NewConfig()
	}
	for _, apply := range o.overrides {
		apply(cfg)
	}
	return cfg
}

func (o *options) override(fn func(*config.Config)) {
	o.overrides = append(o.overrides, fn)
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置作为基础
//
// 之后的 With* 选项会覆盖其中的字段。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		o.base = cfg.Clone()
		return nil
	}
}

// WithPreset 使用预设配置作为基础
//
// 可用预设见 PresetNameLAN、PresetNameLocal。
func WithPreset(name string) Option {
	return func(o *options) error {
		cfg, err := GetPresetConfig(name)
		if err != nil {
			return err
		}
		o.base = cfg
		return nil
	}
}

// WithNetworkName 设置网络名
//
// 只有网络名相同的节点才会互相连接。
func WithNetworkName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("network name is empty")
		}
		o.override(func(c *config.Config) { c.NetworkName = name })
		return nil
	}
}

// WithListenPort 设置 TCP 监听端口，0 表示随机端口
func WithListenPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 0xFFFF {
			return fmt.Errorf("listen port %d out of range", port)
		}
		o.override(func(c *config.Config) { c.Transport.ListenPort = port })
		return nil
	}
}

// WithAdvertiseIP 设置对外公告的 IP
func WithAdvertiseIP(ip string) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) { c.Transport.AdvertiseIP = ip })
		return nil
	}
}

// WithMulticastGroup 设置心跳多播组 "ip:port"
func WithMulticastGroup(group string) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) { c.Discovery.Group = group })
		return nil
	}
}

// WithMulticastInterface 设置加入多播组的网卡
func WithMulticastInterface(name string) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) { c.Discovery.Interface = name })
		return nil
	}
}

// WithHeartbeat 设置心跳周期与失联判定时长
//
// maxResponseDelay 必须大于 interval，否则在 New 时校验失败。
func WithHeartbeat(interval, maxResponseDelay time.Duration) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) {
			c.Discovery.HeartbeatInterval = config.Duration(interval)
			c.Discovery.MaxResponseDelay = config.Duration(maxResponseDelay)
		})
		return nil
	}
}

// WithMetrics 开启或关闭 Prometheus 指标
func WithMetrics(enabled bool) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) { c.Metrics.Enabled = enabled })
		return nil
	}
}

// WithMetricsRegistry 使用外部 Prometheus 注册表
//
// 不设置时节点创建自己的注册表，可通过 Node.Gatherer 读取。
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              宿主与命令
// ════════════════════════════════════════════════════════════════════════════

// WithHost 设置宿主回调
//
// 宿主还可以实现 commands.TextReceiver 与 commands.PongReceiver
// 来接收内置命令。
func WithHost(h interfaces.Host) Option {
	return func(o *options) error {
		o.host = h
		return nil
	}
}

// WithCommands 注册自定义命令
//
// 内置命令（Text、Ping、Pong）始终可用。
func WithCommands(factories ...interfaces.CommandFactory) Option {
	return func(o *options) error {
		o.commands = append(o.commands, factories...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              日志与扩展
// ════════════════════════════════════════════════════════════════════════════

// WithLogFile 将日志输出重定向到指定文件
//
// 文件以追加模式打开，节点 Close 时关闭。
//
// 示例：
//
//	vmbus.New(ctx, vmbus.WithLogFile("vmbus.log"))
func WithLogFile(path string) Option {
	return func(o *options) error {
		o.logFile = path
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
//
// 用于替换或装饰内部组件，例如 fx.Decorate 替换地址选择策略。
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
