package interfaces

import (
	"io"
	"time"

	"github.com/dep2p/go-relay/pkg/types"
)

// Stream 连接上的一条协议流
type Stream interface {
	io.ReadWriteCloser

	// Reset 立即关闭流的两个方向
	//
	// 阻塞中的 Read/Write 会立即返回。
	Reset() error

	// SetDeadline 设置读写截止时间
	SetDeadline(t time.Time) error

	// SetReadDeadline 设置读截止时间
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline 设置写截止时间
	SetWriteDeadline(t time.Time) error

	// Protocol 返回协商后的协议
	Protocol() types.ProtocolID

	// SetProtocol 记录协商后的协议（入站流由 Swarm 协商后设置）
	SetProtocol(p types.ProtocolID)

	// Conn 返回所属连接
	Conn() Connection
}
