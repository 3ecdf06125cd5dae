package client

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/core/upgrader"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// Params 中继客户端依赖
type Params struct {
	fx.In

	Upgrader *upgrader.Upgrader
	Config   *config.Config `optional:"true"`
}

// Result 中继客户端输出
//
// Client 同时作为行为（处理 STOP）与传输（拨号电路地址）注册到 Swarm。
type Result struct {
	fx.Out

	Client    *Client
	Behaviour swarm.NetworkBehaviour `group:"behaviours"`
	Transport pkgif.Transport        `group:"transports"`
}

// ProvideClient 按配置提供中继客户端
func ProvideClient(p Params) (Result, error) {
	cfg, err := ConfigFromUnified(p.Config)
	if err != nil {
		return Result{}, err
	}
	c := New(cfg, p.Upgrader)
	return Result{Client: c, Behaviour: c, Transport: c.Transport()}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("relay.client",
		fx.Provide(ProvideClient),
	)
}
