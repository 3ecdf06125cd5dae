package swarm

import (
	"time"

	"github.com/dep2p/go-relay/config"
)

// Config Swarm 配置
type Config struct {
	// DialTimeout 单次拨号（含升级）超时
	DialTimeout time.Duration

	// NegotiateTimeout 入站流协议协商超时
	NegotiateTimeout time.Duration

	// TickInterval 行为 Tick 间隔
	TickInterval time.Duration

	// PollBudget 每轮每个行为最多处理的消息数
	PollBudget int

	// EventBuffer Events() 通道容量
	EventBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建 Swarm 配置
func ConfigFromUnified(cfg *config.Config) Config {
	sc := config.DefaultSwarmConfig()
	if cfg != nil {
		sc = cfg.Swarm
	}
	return Config{
		DialTimeout:      sc.DialTimeout.Std(),
		NegotiateTimeout: sc.NegotiateTimeout.Std(),
		TickInterval:     sc.TickInterval.Std(),
		PollBudget:       sc.PollBudget,
		EventBuffer:      sc.EventBuffer,
	}
}

// maxPendingEvents 无人消费时事件队列的上限，超出后丢弃最旧的事件
const maxPendingEvents = 8192

// drainBudget 每轮最多处理的 Swarm 内部消息数
const drainBudget = 256
