package netaddr

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-vmbus/config"
)

// Module 返回 netaddr fx 模块
//
// 根据 Transport.AdvertiseIP 提供默认 Selector；
// 上层可以用 fx.Decorate 替换为自定义策略。
func Module() fx.Option {
	return fx.Module("netaddr",
		fx.Provide(provideSelector),
	)
}

func provideSelector(cfg *config.Config) (Selector, error) {
	return Default(cfg.Transport.AdvertiseIP)
}
