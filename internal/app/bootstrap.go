// Package app 提供中继节点的应用编排层
//
// app 包负责：
// - fx 模块组装
// - 依赖注入协调
// - 生命周期管理
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/metrics"
	"github.com/dep2p/go-relay/internal/core/relay/client"
	"github.com/dep2p/go-relay/internal/core/relay/server"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/util/logger"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("app")

// Bootstrap 应用引导程序
//
// Bootstrap 负责：
// - 校验配置
// - 组装 fx 模块
// - 管理应用生命周期
type Bootstrap struct {
	config    *config.Config
	logOutput io.Writer
	extra     []fx.Option
	opts      BuildOptions

	fxApp *fx.App
	rt    *Runtime
}

// handles fx 图中取出的运行时句柄
type handles struct {
	fx.In

	LocalPeer types.NodeID
	Swarm     *swarm.Swarm
	Server    *server.Server   `optional:"true"`
	Client    *client.Client   `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

// NewBootstrap 创建引导程序
func NewBootstrap(cfg *config.Config, opts ...BootstrapOption) *Bootstrap {
	b := &Bootstrap{
		config: cfg,
		opts:   DefaultBuildOptions(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.config == nil {
		b.config = config.DefaultConfig()
	}
	return b
}

// Build 构建中继节点并启动事件循环（不监听）
func (b *Bootstrap) Build() (*Runtime, error) {
	if b.fxApp != nil {
		return b.rt, nil
	}
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	b.setupLogging()

	var h handles
	fxApp := fx.New(
		fx.Options(b.setupModules()...),
		fx.Options(b.extra...),
		fx.NopLogger,
		fx.Populate(&h),
	)
	if err := fxApp.Err(); err != nil {
		return nil, fmt.Errorf("组装模块失败: %w", err)
	}

	// Start 失败时 fx 会回滚已执行的 OnStart
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.StartTimeout)
	defer cancel()
	if err := fxApp.Start(ctx); err != nil {
		return nil, fmt.Errorf("启动应用失败: %w", err)
	}
	b.fxApp = fxApp

	b.rt = &Runtime{
		LocalPeer: h.LocalPeer,
		Swarm:     h.Swarm,
		Server:    h.Server,
		Client:    h.Client,
		Metrics:   h.Metrics,
		stop:      b.Stop,
	}
	log.Info("节点已构建",
		"peer", h.LocalPeer.String(),
		"relayServer", h.Server != nil,
		"relayClient", h.Client != nil)
	return b.rt, nil
}

// Start 构建节点、监听配置的地址并拨号启动地址
//
// 任一监听地址绑定失败或启动地址无效都返回错误，并停止已构建的部分。
func (b *Bootstrap) Start(ctx context.Context) (*Runtime, error) {
	rt, err := b.Build()
	if err != nil {
		return nil, err
	}

	if err := b.listen(rt); err != nil {
		return nil, multierr.Append(err, b.Stop(ctx))
	}
	if err := b.dial(rt); err != nil {
		return nil, multierr.Append(err, b.Stop(ctx))
	}
	return rt, nil
}

func (b *Bootstrap) listen(rt *Runtime) error {
	for _, s := range b.config.Listen.ListenAddrs() {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return fmt.Errorf("监听地址无效 %q: %w", s, err)
		}
		addrs, err := rt.Swarm.Listen(addr)
		if err != nil {
			return fmt.Errorf("监听 %s 失败: %w", addr, err)
		}
		for _, a := range addrs {
			log.Info("监听地址", "addr", a.String())
		}
		rt.ListenAddrs = append(rt.ListenAddrs, addrs...)
	}
	return nil
}

func (b *Bootstrap) dial(rt *Runtime) error {
	for _, s := range b.config.Listen.Dial {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return fmt.Errorf("拨号地址无效 %q: %w", s, err)
		}
		rt.Swarm.Dial(addr)
		log.Info("已发起拨号", "addr", addr.String())
	}
	return nil
}

// Stop 停止应用，重复调用无副作用（不可与 Build 并发）
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil {
		return nil
	}
	fxApp := b.fxApp
	b.fxApp = nil

	stopCtx, cancel := context.WithTimeout(ctx, b.opts.StopTimeout)
	defer cancel()

	return fxApp.Stop(stopCtx)
}

// setupModules 组装所有 fx 模块
func (b *Bootstrap) setupModules() []fx.Option {
	return []fx.Option{
		// 配置模块（Tier 0）
		fx.Supply(b.config),

		// 基础层（Tier 1: Foundation）
		FoundationModules(),

		// 传输层（Tier 2: Transport）
		TransportModules(),

		// 行为层（Tier 3: Behaviour）
		b.setupBehaviourLayer(),

		// 监控层（Tier 4: Monitoring）
		MonitoringModules(),

		// 调度层（Tier 5: Swarm）
		SwarmModules(),
	}
}

// setupBehaviourLayer 行为层模块
//
// ping 与 identify 始终启用；中继服务端与客户端由配置开关控制。
func (b *Bootstrap) setupBehaviourLayer() fx.Option {
	modules := []fx.Option{BehaviourModules()}

	if b.config.Relay.EnableServer {
		modules = append(modules, RelayServerModule())
	}
	if b.config.Relay.EnableClient {
		modules = append(modules, RelayClientModule())
	}
	return fx.Options(modules...)
}

// setupLogging 配置日志输出（必须在所有模块初始化之前）
func (b *Bootstrap) setupLogging() {
	if b.logOutput != nil {
		logger.SetOutput(b.logOutput)
	}
}

// stopTimeout 用于没有外部 ctx 的停止路径
func (b *Bootstrap) stopTimeout() time.Duration {
	return b.opts.StopTimeout
}
