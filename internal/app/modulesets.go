// Package app 提供模块集合清单
//
// modulesets.go 集中维护"哪些模块属于哪个 Tier"，是 Bootstrap 组装的唯一模块来源。
package app

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-relay/internal/core/identity"
	"github.com/dep2p/go-relay/internal/core/metrics"
	"github.com/dep2p/go-relay/internal/core/protocol/system/identify"
	"github.com/dep2p/go-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-relay/internal/core/relay/client"
	"github.com/dep2p/go-relay/internal/core/relay/server"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/core/transport/tcp"
	"github.com/dep2p/go-relay/internal/core/upgrader"
)

// ============================================================================
//                              固定必选模块集合（不依赖配置裁剪）
// ============================================================================

// FoundationModules 基础层模块组合 (Tier 1)
//
// 提供本地身份与节点 ID，是其它模块的基础。
func FoundationModules() fx.Option {
	return fx.Options(
		identity.Module(),
	)
}

// TransportModules 传输层模块组合 (Tier 2)
//
// TCP 传输，连接经升级器完成 Noise 握手与 Yamux 多路复用。
func TransportModules() fx.Option {
	return fx.Options(
		upgrader.Module(),
		tcp.Module(),
	)
}

// BehaviourModules 基础行为组合 (Tier 3)
//
// ping 与 identify 在所有节点上运行。
func BehaviourModules() fx.Option {
	return fx.Options(
		ping.Module(),
		identify.Module(),
	)
}

// MonitoringModules 监控模块组合 (Tier 4)
func MonitoringModules() fx.Option {
	return fx.Options(
		metrics.Module(),
	)
}

// SwarmModules 调度层模块组合 (Tier 5)
//
// Swarm 收集 transports 与 behaviours 组中的全部成员。
func SwarmModules() fx.Option {
	return fx.Options(
		swarm.Module(),
	)
}

// ============================================================================
//                              可选模块（由配置开关控制）
// ============================================================================

// RelayServerModule 中继服务端（Relay.EnableServer）
func RelayServerModule() fx.Option {
	return server.Module()
}

// RelayClientModule 中继客户端（Relay.EnableClient）
//
// 同时向 Swarm 注册行为与 /p2p-circuit 传输。
func RelayClientModule() fx.Option {
	return client.Module()
}
