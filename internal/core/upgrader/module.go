package upgrader

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/muxer/yamux"
	"github.com/dep2p/go-relay/internal/core/security/noise"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// Params Upgrader 依赖参数
type Params struct {
	fx.In

	Identity pkgif.Identity
	Config   *config.Config `optional:"true"`
}

// ProvideUpgrader 提供 Noise + yamux 升级器
func ProvideUpgrader(p Params) (*Upgrader, error) {
	sec, err := noise.New(p.Identity)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		SecurityTransports: []pkgif.SecureTransport{sec},
		StreamMuxers:       []pkgif.StreamMuxer{yamux.NewTransport(nil)},
	}
	if p.Config != nil {
		cfg.NegotiateTimeout = p.Config.Swarm.NegotiateTimeout.Std()
	}
	return New(p.Identity, cfg)
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("upgrader",
		fx.Provide(ProvideUpgrader),
	)
}
