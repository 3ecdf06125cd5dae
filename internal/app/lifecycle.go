package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// App 中继节点应用接口
//
// App 提供应用级别的生命周期管理
type App interface {
	// Runtime 返回节点运行时
	Runtime() *Runtime

	// Wait 阻塞直到收到退出信号、ctx 取消或 Stop 被调用
	Wait(ctx context.Context)

	// Stop 停止应用
	Stop() error
}

// internalApp App 的内部实现
type internalApp struct {
	bootstrap *Bootstrap
	rt        *Runtime
	cancel    context.CancelFunc
	logDone   chan struct{}
	stopOnce  sync.Once
	stopped   chan struct{}
	stopErr   error
}

// RunApp 运行中继节点
//
// 构建并启动节点，后台记录 Swarm 事件。调用方随后 Wait 并在返回后 Stop：
//
//	app, err := app.RunApp(ctx, bootstrap)
//	if err != nil {
//	    return err
//	}
//	app.Wait(ctx)
//	return app.Stop()
func RunApp(ctx context.Context, bootstrap *Bootstrap) (App, error) {
	rt, err := bootstrap.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("启动应用失败: %w", err)
	}

	logCtx, cancel := context.WithCancel(context.Background())
	a := &internalApp{
		bootstrap: bootstrap,
		rt:        rt,
		cancel:    cancel,
		logDone:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go func() {
		defer close(a.logDone)
		LogEvents(logCtx, rt.Events())
	}()
	return a, nil
}

// Runtime 返回节点运行时
func (a *internalApp) Runtime() *Runtime {
	return a.rt
}

// Wait 等待退出信号
func (a *internalApp) Wait(ctx context.Context) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		log.Info("收到信号，正在退出", "signal", sig.String())
	case <-ctx.Done():
	case <-a.stopped:
	}
}

// Stop 停止应用
func (a *internalApp) Stop() error {
	a.stopOnce.Do(func() {
		close(a.stopped)

		ctx, cancel := context.WithTimeout(context.Background(), a.bootstrap.stopTimeout())
		defer cancel()
		if err := a.bootstrap.Stop(ctx); err != nil {
			a.stopErr = fmt.Errorf("停止节点失败: %w", err)
		}

		a.cancel()
		<-a.logDone
	})
	return a.stopErr
}
