package config

// IdentityConfig 身份配置
type IdentityConfig struct {
	// SecretKeySeed 确定性身份种子
	//
	// 32 字节 Ed25519 种子的首字节取该值，其余为 0。
	// nil 表示生成随机身份（仅用于测试与嵌入场景，命令行必须提供）。
	SecretKeySeed *uint8 `json:"secret_key_seed,omitempty"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// WithSeed 返回带有指定种子的身份配置
func WithSeed(seed uint8) IdentityConfig {
	return IdentityConfig{SecretKeySeed: &seed}
}
