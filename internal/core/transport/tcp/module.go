package tcp

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/upgrader"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// Params TCP 传输依赖
type Params struct {
	fx.In

	Upgrader *upgrader.Upgrader
	Config   *config.Config `optional:"true"`
}

// Result TCP 传输输出
type Result struct {
	fx.Out

	Transport pkgif.Transport `group:"transports"`
}

// ProvideTransport 提供 TCP 传输
func ProvideTransport(p Params, lc fx.Lifecycle) Result {
	var timeout = defaultHandshakeTimeout
	if p.Config != nil {
		timeout = p.Config.Swarm.DialTimeout.Std()
	}
	t := NewTransport(p.Upgrader, timeout)
	lc.Append(fx.StopHook(t.Close))
	return Result{Transport: t}
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport.tcp",
		fx.Provide(ProvideTransport),
	)
}
