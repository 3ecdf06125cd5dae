package config

import "errors"

// PingConfig 存活检测配置
type PingConfig struct {
	// Interval 两次检测之间的间隔
	Interval Duration `json:"interval"`

	// Timeout 单次检测超时
	Timeout Duration `json:"timeout"`

	// MaxFailures 连续失败多少次后关闭连接，0 表示从不关闭
	MaxFailures int `json:"max_failures"`
}

// DefaultPingConfig 返回默认存活检测配置
func DefaultPingConfig() PingConfig {
	return PingConfig{
		Interval:    Duration(DefaultPingInterval),
		Timeout:     Duration(DefaultPingTimeout),
		MaxFailures: DefaultPingMaxFailures,
	}
}

// Validate 验证存活检测配置
func (c PingConfig) Validate() error {
	if c.Interval <= 0 || c.Timeout <= 0 {
		return errors.New("ping interval and timeout must be positive")
	}
	if c.MaxFailures < 0 {
		return errors.New("ping max failures must not be negative")
	}
	return nil
}

// IdentifyConfig 身份识别配置
type IdentifyConfig struct {
	// AgentVersion 通告的代理版本
	AgentVersion string `json:"agent_version"`

	// Timeout 单次交换超时
	Timeout Duration `json:"timeout"`

	// CacheSize 缓存的远程节点信息条目数
	CacheSize int `json:"cache_size"`
}

// DefaultIdentifyConfig 返回默认身份识别配置
func DefaultIdentifyConfig() IdentifyConfig {
	return IdentifyConfig{
		AgentVersion: DefaultAgentVersion,
		Timeout:      Duration(DefaultIdentifyTimeout),
		CacheSize:    DefaultIdentifyCacheSize,
	}
}

// Validate 验证身份识别配置
func (c IdentifyConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("identify timeout must be positive")
	}
	if c.CacheSize <= 0 {
		return errors.New("identify cache size must be positive")
	}
	return nil
}
