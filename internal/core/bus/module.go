package bus

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-vmbus/config"
	"github.com/dep2p/go-vmbus/internal/core/codec"
	"github.com/dep2p/go-vmbus/internal/core/metrics"
	"github.com/dep2p/go-vmbus/internal/core/netaddr"
	"github.com/dep2p/go-vmbus/pkg/interfaces"
)

// Params Bus 依赖参数
type Params struct {
	fx.In

	Config   *config.Config
	Host     interfaces.Host
	Selector netaddr.Selector
	Reporter metrics.Reporter `optional:"true"`
	Registry *codec.Registry  `optional:"true"`
	Options  []Option         `group:"bus_options"`
}

// Result Bus 提供的类型
type Result struct {
	fx.Out

	Bus       *Bus
	Interface interfaces.Bus
}

// NewFromParams 从参数创建 Bus
func NewFromParams(p Params) (Result, error) {
	opts := []Option{WithSelector(p.Selector)}
	if p.Reporter != nil {
		opts = append(opts, WithReporter(p.Reporter))
	}
	if p.Registry != nil {
		opts = append(opts, WithRegistry(p.Registry))
	}
	opts = append(opts, p.Options...)

	b, err := New(p.Config, p.Host, opts...)
	if err != nil {
		return Result{}, err
	}
	return Result{Bus: b, Interface: b}, nil
}

// Module 是 bus 的 Fx 模块
//
// OnStart 时 Connect，OnStop 时 Close。
var Module = fx.Module("bus",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, b *Bus) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := b.Connect(ctx)
			return err
		},
		OnStop: func(ctx context.Context) error {
			return b.Close(ctx)
		},
	})
}
