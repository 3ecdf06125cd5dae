package app

import (
	"io"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-relay/config"
)

// BootstrapOption Bootstrap 配置选项
type BootstrapOption func(*Bootstrap)

// WithConfig 设置配置
func WithConfig(cfg *config.Config) BootstrapOption {
	return func(b *Bootstrap) {
		b.config = cfg
	}
}

// WithLogOutput 将全部子系统日志重定向到 w
func WithLogOutput(w io.Writer) BootstrapOption {
	return func(b *Bootstrap) {
		b.logOutput = w
	}
}

// WithBuildOptions 设置构建选项
func WithBuildOptions(opts BuildOptions) BootstrapOption {
	return func(b *Bootstrap) {
		b.opts = opts
	}
}

// WithFxOptions 追加 fx 选项
//
// 用于测试替换依赖，例如 fx.Supply 一个模拟时钟。
func WithFxOptions(opts ...fx.Option) BootstrapOption {
	return func(b *Bootstrap) {
		b.extra = append(b.extra, opts...)
	}
}

// BuildOptions 构建选项
type BuildOptions struct {
	// StartTimeout 启动超时
	StartTimeout time.Duration

	// StopTimeout 停止超时
	StopTimeout time.Duration
}

// DefaultBuildOptions 默认构建选项
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		StartTimeout: 30 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}
