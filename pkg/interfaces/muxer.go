package interfaces

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dep2p/go-relay/pkg/types"
)

// StreamMuxer 流多路复用器工厂
type StreamMuxer interface {
	// NewConn 在安全连接之上建立多路复用会话
	NewConn(conn net.Conn, isServer bool) (MuxedConn, error)

	// ID 返回多路复用协议 ID
	ID() types.ProtocolID
}

// MuxedConn 多路复用会话
type MuxedConn interface {
	// OpenStream 打开新流
	OpenStream(ctx context.Context) (MuxedStream, error)

	// AcceptStream 接受入站流
	AcceptStream() (MuxedStream, error)

	// NumStreams 返回当前流数量
	NumStreams() int

	// Close 关闭会话
	Close() error

	// IsClosed 检查会话是否已关闭
	IsClosed() bool
}

// MuxedStream 多路复用流
type MuxedStream interface {
	io.ReadWriteCloser

	// Reset 立即关闭两个方向
	Reset() error

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}
