package app

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/core/metrics"
	"github.com/dep2p/go-relay/internal/core/relay/client"
	"github.com/dep2p/go-relay/internal/core/relay/server"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/pkg/types"
)

// Runtime 表示一个已通过 fx 组装完成的中继节点
//
// Server 与 Client 在对应开关关闭时为 nil。
type Runtime struct {
	LocalPeer types.NodeID
	Swarm     *swarm.Swarm
	Server    *server.Server
	Client    *client.Client
	Metrics   *metrics.Metrics

	// ListenAddrs Start 绑定的监听地址（已展开通配地址）
	ListenAddrs []ma.Multiaddr

	stop func(ctx context.Context) error
}

// Events 返回 Swarm 事件通道
func (r *Runtime) Events() <-chan swarm.Event {
	return r.Swarm.Events()
}

// Stop 停止运行时（触发 fx 生命周期 OnStop）
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
