package server

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/swarm"
)

// Params 中继服务端依赖
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Result 中继服务端输出
type Result struct {
	fx.Out

	Server    *Server
	Behaviour swarm.NetworkBehaviour `group:"behaviours"`
}

// ProvideServer 按配置提供中继服务端
//
// 关闭由 Swarm 在事件循环退出后完成。
func ProvideServer(p Params) (Result, error) {
	policy := DefaultPolicy()
	if p.Config != nil {
		var err error
		if policy, err = PolicyFromConfig(p.Config.Relay.Server); err != nil {
			return Result{}, err
		}
	}
	s := New(policy)
	return Result{Server: s, Behaviour: s}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("relay.server",
		fx.Provide(ProvideServer),
	)
}
