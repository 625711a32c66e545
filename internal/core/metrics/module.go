package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/dep2p/go-vmbus/config"
)

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Config   *config.Config       `optional:"true"`
	Registry *prometheus.Registry `optional:"true"`
}

// Result Metrics 提供的类型
type Result struct {
	fx.Out

	Reporter Reporter
	Gatherer prometheus.Gatherer
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
)

// NewRegistry 创建带 Go 运行时与进程指标的注册表
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewFromParams 从参数创建 Reporter
//
// 未启用指标时返回 NopReporter 和空注册表。
func NewFromParams(p Params) (Result, error) {
	reg := p.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	if p.Config != nil && !p.Config.Metrics.Enabled {
		return Result{Reporter: NopReporter{}, Gatherer: reg}, nil
	}

	c, err := NewCollector(reg)
	if err != nil {
		return Result{}, err
	}
	return Result{Reporter: c, Gatherer: reg}, nil
}
