package config

import (
	"errors"
	"fmt"
)

// ListenConfig 监听与启动拨号配置
type ListenConfig struct {
	// Port TCP 监听端口，0 表示由系统分配
	Port int `json:"port"`

	// UseIPv6 监听 IPv6 通配地址（::）而不是 0.0.0.0
	UseIPv6 bool `json:"use_ipv6"`

	// Addrs 显式监听地址（multiaddr），非空时忽略 Port/UseIPv6
	Addrs []string `json:"addrs,omitempty"`

	// Dial 启动时主动拨号的地址列表（multiaddr）
	Dial []string `json:"dial,omitempty"`
}

// DefaultListenConfig 返回默认监听配置
func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		Port:    DefaultPort,
		UseIPv6: false,
	}
}

// ListenAddrs 返回要监听的 multiaddr 字符串
func (c ListenConfig) ListenAddrs() []string {
	if len(c.Addrs) > 0 {
		return c.Addrs
	}
	if c.UseIPv6 {
		return []string{fmt.Sprintf("/ip6/::/tcp/%d", c.Port)}
	}
	return []string{fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", c.Port)}
}

// Validate 验证监听配置
func (c ListenConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("listen port must be in [0, 65535]")
	}
	return nil
}
