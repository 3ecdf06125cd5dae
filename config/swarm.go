package config

import "errors"

// SwarmConfig 事件循环与连接管理配置
type SwarmConfig struct {
	// DialTimeout 拨号（含安全握手与多路复用协商）超时
	DialTimeout Duration `json:"dial_timeout"`

	// NegotiateTimeout 入站流协议协商超时
	NegotiateTimeout Duration `json:"negotiate_timeout"`

	// TickInterval 定时驱动各行为 Tick 的间隔
	TickInterval Duration `json:"tick_interval"`

	// PollBudget 每轮每个行为最多处理的消息数
	PollBudget int `json:"poll_budget"`

	// EventBuffer 事件输出通道容量
	EventBuffer int `json:"event_buffer"`
}

// DefaultSwarmConfig 返回默认配置
func DefaultSwarmConfig() SwarmConfig {
	return SwarmConfig{
		DialTimeout:      Duration(DefaultDialTimeout),
		NegotiateTimeout: Duration(DefaultNegotiateTimeout),
		TickInterval:     Duration(DefaultTickInterval),
		PollBudget:       DefaultPollBudget,
		EventBuffer:      DefaultEventBuffer,
	}
}

// Validate 验证配置
func (c SwarmConfig) Validate() error {
	if c.DialTimeout <= 0 || c.NegotiateTimeout <= 0 || c.TickInterval <= 0 {
		return errors.New("swarm timeouts must be positive")
	}
	if c.PollBudget <= 0 {
		return errors.New("poll budget must be positive")
	}
	if c.EventBuffer < 0 {
		return errors.New("event buffer must not be negative")
	}
	return nil
}

// MetricsConfig 指标服务配置
type MetricsConfig struct {
	// Addr Prometheus HTTP 监听地址（host:port），为空表示不启用
	Addr string `json:"addr,omitempty"`
}
