package ping

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/swarm"
)

// Params 依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Result 输出
type Result struct {
	fx.Out

	Behaviour swarm.NetworkBehaviour `group:"behaviours"`
}

// Provide 提供存活检测行为
func Provide(p Params) Result {
	return Result{Behaviour: New(ConfigFromUnified(p.Config))}
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("ping",
		fx.Provide(Provide),
	)
}
