package identify

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/swarm"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// Params 依赖参数
type Params struct {
	fx.In

	Identity pkgif.Identity
	Config   *config.Config `optional:"true"`
}

// Result 输出
type Result struct {
	fx.Out

	Identify  *Behaviour
	Behaviour swarm.NetworkBehaviour `group:"behaviours"`
}

// Provide 提供 identify 行为
func Provide(p Params) (Result, error) {
	b, err := New(ConfigFromUnified(p.Config), p.Identity)
	if err != nil {
		return Result{}, err
	}
	return Result{Identify: b, Behaviour: b}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("identify",
		fx.Provide(Provide),
	)
}
