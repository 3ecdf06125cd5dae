// Package config 提供中继节点的统一配置
//
// 主 Config 结构体嵌入各组件的子配置，每个子配置在独立文件中定义。
// 配置来源按优先级从低到高：
//
//	DefaultConfig() < LoadFile(JSON) < ApplyEnv(RELAY_*) < 命令行参数
//
// 使用示例：
//
//	cfg := config.DefaultConfig()
//	cfg.Listen.Port = 4001
//	cfg.Identity = config.WithSeed(1)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config 中继节点完整配置
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Listen 监听与启动拨号
	Listen ListenConfig `json:"listen"`

	// Relay 中继服务端与客户端
	Relay RelayConfig `json:"relay"`

	// Ping 存活检测
	Ping PingConfig `json:"ping"`

	// Identify 身份识别
	Identify IdentifyConfig `json:"identify"`

	// Swarm 事件循环
	Swarm SwarmConfig `json:"swarm"`

	// Metrics 指标服务
	Metrics MetricsConfig `json:"metrics"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Identity: DefaultIdentityConfig(),
		Listen:   DefaultListenConfig(),
		Relay:    DefaultRelayConfig(),
		Ping:     DefaultPingConfig(),
		Identify: DefaultIdentifyConfig(),
		Swarm:    DefaultSwarmConfig(),
	}
}

// Validate 验证整个配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Listen.Validate(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.Ping.Validate(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := c.Identify.Validate(); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if err := c.Swarm.Validate(); err != nil {
		return fmt.Errorf("swarm: %w", err)
	}
	return nil
}

// LoadFile 从 JSON 文件加载配置
//
// 文件中未出现的字段保留默认值。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // 配置文件路径由运维指定
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return FromJSON(data)
}

// FromJSON 从 JSON 数据解析配置
func FromJSON(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ToJSON 将配置序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
