package swarm

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// Params Swarm 依赖参数
type Params struct {
	fx.In

	LocalPeer  types.NodeID
	Config     *config.Config     `optional:"true"`
	Transports []pkgif.Transport  `group:"transports"`
	Behaviours []NetworkBehaviour `group:"behaviours"`
	Observer   Observer           `optional:"true"`
	Clock      clock.Clock        `optional:"true"`
}

// ProvideSwarm 提供 Swarm，并在生命周期中启动/停止事件循环
func ProvideSwarm(p Params, lc fx.Lifecycle) (*Swarm, error) {
	s, err := NewSwarm(p.LocalPeer,
		WithConfig(ConfigFromUnified(p.Config)),
		WithClock(p.Clock),
		WithTransports(p.Transports...),
		WithBehaviours(p.Behaviours...),
		WithObserver(p.Observer),
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := s.Run(context.Background()); err != nil {
					log.Error("事件循环退出", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("swarm",
		fx.Provide(
			ProvideSwarm,
			func(s *Swarm) Host { return s },
		),
	)
}
