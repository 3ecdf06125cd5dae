package client

import (
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/util/addrutil"
)

const (
	// retryBase 预留失败后的首次重试间隔
	retryBase = 5 * time.Second
	// retryMax 重试间隔上限
	retryMax = 5 * time.Minute
)

// Config 中继客户端配置
type Config struct {
	// ReservationDuration 请求的预留时长，0 交由中继决定
	ReservationDuration time.Duration

	// ConnectTimeout 预留、拨号与 STOP 应答的超时
	ConnectTimeout time.Duration

	// Relays 启动后自动预留的中继（完整地址）
	Relays []ma.Multiaddr
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ReservationDuration: config.DefaultClientReservationDuration,
		ConnectTimeout:      config.DefaultClientConnectTimeout,
	}
}

// ConfigFromUnified 从统一配置构建
func ConfigFromUnified(c *config.Config) (Config, error) {
	cfg := DefaultConfig()
	if c == nil {
		return cfg, nil
	}
	cfg.ReservationDuration = c.Relay.Client.ReservationDuration.Std()
	if c.Relay.Client.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.Relay.Client.ConnectTimeout.Std()
	}
	for _, s := range c.Relay.Client.Relays {
		addr, _, err := addrutil.ParseFullAddr(s)
		if err != nil {
			return Config{}, fmt.Errorf("relay %q: %w", s, err)
		}
		cfg.Relays = append(cfg.Relays, addr)
	}
	return cfg, nil
}

// backoff 第 n 次失败后的重试间隔
func backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := retryBase
	for i := 1; i < n && d < retryMax; i++ {
		d *= 2
	}
	if d > retryMax {
		d = retryMax
	}
	return d
}
