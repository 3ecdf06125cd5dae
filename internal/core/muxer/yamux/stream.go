package yamux

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// 确保实现接口
var _ pkgif.MuxedStream = (*Stream)(nil)

// Stream 封装 yamux.Stream
type Stream struct {
	stream *yamux.Stream
	reset  atomic.Bool
}

func newStream(s *yamux.Stream) *Stream {
	return &Stream{stream: s}
}

// Read 从流中读取
func (s *Stream) Read(p []byte) (int, error) {
	return s.stream.Read(p)
}

// Write 向流写入
func (s *Stream) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// Close 关闭写方向（发送 FIN）
//
// 对端读到 EOF；本端仍可读取对端未发送完的数据。
func (s *Stream) Close() error {
	return s.stream.Close()
}

// Reset 立即关闭两个方向
//
// yamux 没有公开 RST，这里发送 FIN 并把读写截止时间设为当前，
// 使本端阻塞中的 Read/Write 立即返回。
func (s *Stream) Reset() error {
	if !s.reset.CompareAndSwap(false, true) {
		return nil
	}
	err := s.stream.Close()
	_ = s.stream.SetDeadline(time.Now())
	return err
}

// ID 返回流 ID
func (s *Stream) ID() uint32 {
	return s.stream.StreamID()
}

// SetDeadline 设置读写截止时间
func (s *Stream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.stream.SetWriteDeadline(t)
}
