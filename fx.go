package vmbus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/bus"
	"github.com/dep2p/go-vmbus/internal/core/codec"
	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/internal/core/netaddr"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置与宿主
//  2. netaddr → metrics → bus
//  3. 用户扩展
//  4. Node 组件注入
func buildFxApp(cfg *config.Config, o *options, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	reg := codec.DefaultRegistry()
	for _, factory := range o.commands {
		if err := reg.Register(factory); err != nil {
			return nil, fmt.Errorf("register command: %w", err)
		}
	}

	host := &nodeHost{user: o.host, node: node}

	modules := []fx.Option{
		// 配置注入
		fx.Supply(cfg),
		fx.Supply(reg),
		fx.Provide(func() interfaces.Host { return host }),
	}
	if o.registry != nil {
		modules = append(modules, fx.Supply(o.registry))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		netaddr.Module(), // 本地地址选择
		metrics.Module,   // Prometheus 指标
		bus.Module,       // 连接表、发现与收发
	)

	// ════════════════════════════════════════════════════════════════════════
	// 3. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 5. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// injectNodeComponents 把 Fx 构建的组件注入 Node
func injectNodeComponents(node *Node) func(*bus.Bus, prometheus.Gatherer) {
	return func(b *bus.Bus, g prometheus.Gatherer) {
		node.bus.Store(b)
		node.gatherer = g
	}
}
