package identify

import "errors"

var (
	// ErrMessageTooLarge 消息超过长度上限
	ErrMessageTooLarge = errors.New("identify: message too large")

	// ErrMalformedMessage 消息无法解码
	ErrMalformedMessage = errors.New("identify: malformed message")

	// ErrPeerIDMismatch 公钥与连接的对端 NodeID 不一致
	ErrPeerIDMismatch = errors.New("identify: public key does not match peer id")

	// ErrMissingPublicKey 消息缺少公钥
	ErrMissingPublicKey = errors.New("identify: missing public key")
)
