package noise

import "errors"

var (
	// ErrInvalidHandshake 握手失败
	ErrInvalidHandshake = errors.New("noise: invalid handshake")

	// ErrPeerIDMismatch 远程身份与期望不符
	ErrPeerIDMismatch = errors.New("noise: peer ID mismatch")

	// ErrInvalidPayload 握手 payload 无法解析
	ErrInvalidPayload = errors.New("noise: invalid handshake payload")

	// ErrInvalidSignature 静态公钥未被身份密钥签名
	ErrInvalidSignature = errors.New("noise: static key not bound to identity key")

	// ErrFrameTooLarge 帧超过 65535 字节
	ErrFrameTooLarge = errors.New("noise: frame too large")
)
