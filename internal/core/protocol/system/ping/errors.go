package ping

import "errors"

var (
	// ErrDataMismatch Ping 回显数据不匹配
	ErrDataMismatch = errors.New("ping: echo data mismatch")

	// ErrClosed 行为已关闭
	ErrClosed = errors.New("ping: closed")
)
