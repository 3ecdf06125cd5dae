package upgrader

import (
	"time"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// 确保实现接口
var _ pkgif.Stream = (*Stream)(nil)

// Stream 连接上的协议流
type Stream struct {
	ms       pkgif.MuxedStream
	conn     *Conn
	protocol types.ProtocolID
}

func newStream(ms pkgif.MuxedStream, conn *Conn, protocol types.ProtocolID) *Stream {
	return &Stream{ms: ms, conn: conn, protocol: protocol}
}

func (s *Stream) Read(p []byte) (int, error)  { return s.ms.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.ms.Write(p) }

// Close 关闭写方向
func (s *Stream) Close() error { return s.ms.Close() }

// Reset 立即关闭两个方向
func (s *Stream) Reset() error { return s.ms.Reset() }

func (s *Stream) SetDeadline(t time.Time) error      { return s.ms.SetDeadline(t) }
func (s *Stream) SetReadDeadline(t time.Time) error  { return s.ms.SetReadDeadline(t) }
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.ms.SetWriteDeadline(t) }

// Protocol 返回协商后的协议
func (s *Stream) Protocol() types.ProtocolID { return s.protocol }

// SetProtocol 记录协商后的协议
func (s *Stream) SetProtocol(p types.ProtocolID) { s.protocol = p }

// Conn 返回所属连接
func (s *Stream) Conn() pkgif.Connection { return s.conn }
