package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/app"
	"github.com/dep2p/go-relay/internal/util/logger"
)

var log = logger.Logger("cmd")

// runNode 启动节点并阻塞到收到退出信号
//
// 监听地址绑定失败、启动拨号地址无效或指标端口不可用时立即返回错误。
func runNode(ctx context.Context, cfg *config.Config, statsInterval time.Duration) error {
	// 指标端口先于节点绑定，失败时无需回滚
	var metricsLn net.Listener
	if cfg.Metrics.Addr != "" {
		var err error
		if metricsLn, err = net.Listen("tcp", cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("listen metrics %s: %w", cfg.Metrics.Addr, err)
		}
	}

	a, err := app.RunApp(ctx, app.NewBootstrap(cfg))
	if err != nil {
		if metricsLn != nil {
			_ = metricsLn.Close()
		}
		return err
	}
	rt := a.Runtime()
	log.Info("本地身份", "peer", rt.LocalPeer.String())

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	if metricsLn != nil {
		g.Go(func() error { return rt.Metrics.Serve(gctx, metricsLn) })
	}
	if statsInterval > 0 && rt.Server != nil {
		g.Go(func() error {
			logStats(gctx, rt, statsInterval)
			return nil
		})
	}

	a.Wait(gctx)
	cancel()
	return multierr.Combine(g.Wait(), a.Stop())
}

// logStats 定期输出中继统计
func logStats(ctx context.Context, rt *app.Runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := rt.Server.QueryStats(ctx)
		if err != nil {
			return
		}
		log.Info("中继统计",
			"reservations", st.Reservations,
			"activeCircuits", st.ActiveCircuits,
			"establishing", st.EstablishingCircuits,
			"accepted", st.ReservationsAccepted,
			"denied", st.ReservationsDenied,
			"circuits", st.CircuitsEstablished,
			"circuitsDenied", st.CircuitsDenied,
			"bytes", st.BytesRelayed)
	}
}
