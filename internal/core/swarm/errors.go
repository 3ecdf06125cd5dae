package swarm

import "errors"

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm closed")

	// ErrAlreadyRunning 事件循环已在运行
	ErrAlreadyRunning = errors.New("swarm already running")

	// ErrNoTransport 没有可用传输层
	ErrNoTransport = errors.New("no transport for address")

	// ErrDialFailed 拨号失败
	ErrDialFailed = errors.New("dial failed")

	// ErrListenFailed 监听失败
	ErrListenFailed = errors.New("listen failed")

	// ErrDialToSelf 尝试拨号自己
	ErrDialToSelf = errors.New("dial to self attempted")

	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")

	// ErrDuplicateProtocol 多个行为注册了同一协议
	ErrDuplicateProtocol = errors.New("protocol registered by more than one behaviour")
)
