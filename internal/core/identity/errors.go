package identity

import "errors"

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrInvalidPrivateKey 私钥格式无效
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInvalidPublicKey 公钥格式无效
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrUnsupportedKeyType 不支持的密钥类型（仅支持 Ed25519）
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// ErrFailedToGenerateKey 密钥生成失败
	ErrFailedToGenerateKey = errors.New("failed to generate key")
)
