package pb

import "errors"

var (
	// ErrMalformedMessage 消息格式错误
	ErrMalformedMessage = errors.New("relay: malformed message")

	// ErrUnexpectedMessage 消息类型与协议状态不符
	ErrUnexpectedMessage = errors.New("relay: unexpected message")

	// ErrMessageTooLarge 消息超过大小上限
	ErrMessageTooLarge = errors.New("relay: message too large")
)
