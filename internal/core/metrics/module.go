package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/internal/core/swarm"
)

// Result 输出
type Result struct {
	fx.Out

	Metrics  *Metrics
	Observer swarm.Observer
}

// Provide 提供指标与 Swarm 观察者
func Provide() Result {
	m := New()
	return Result{Metrics: m, Observer: m}
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(Provide),
	)
}
