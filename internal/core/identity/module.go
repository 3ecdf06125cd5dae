package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("identity")

// ============================================================================
//                              模块输入输出
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ModuleOutput 模块输出服务
type ModuleOutput struct {
	fx.Out

	Identity  pkgif.Identity
	LocalPeer types.NodeID
}

// ProvideServices 按配置创建身份
//
// 配置了种子时派生确定性身份，否则生成随机身份。
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	var (
		id  *Identity
		err error
	)
	if input.Config != nil && input.Config.Identity.SecretKeySeed != nil {
		id = FromSeed(*input.Config.Identity.SecretKeySeed)
	} else {
		id, err = Generate()
		if err != nil {
			return ModuleOutput{}, err
		}
		log.Warn("未配置身份种子，使用随机身份")
	}

	log.Info("本地身份", "peer", id.ID().String())
	return ModuleOutput{Identity: id, LocalPeer: id.ID()}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideServices),
	)
}
