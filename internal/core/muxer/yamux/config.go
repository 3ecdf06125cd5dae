// Package yamux 提供基于 yamux 的多路复用实现
package yamux

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"
)

// DefaultYamuxConfig 返回默认的 yamux 配置
//
// 连接层存活由 ping 行为负责，这里的 keepalive 只用于探测死连接。
func DefaultYamuxConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		StreamOpenTimeout:      75 * time.Second,
		StreamCloseTimeout:     5 * time.Minute,
		LogOutput:              io.Discard,
	}
}
