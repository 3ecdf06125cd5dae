package yamux

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/yamux"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// ErrMuxerClosed 会话已关闭
var ErrMuxerClosed = errors.New("yamux: session closed")

// 确保实现接口
var _ pkgif.MuxedConn = (*Muxer)(nil)

// Muxer 封装 yamux.Session
type Muxer struct {
	session  *yamux.Session
	isServer bool
	closed   atomic.Bool
}

// NewMuxer 从 yamux.Session 创建 Muxer
func NewMuxer(session *yamux.Session, isServer bool) *Muxer {
	return &Muxer{session: session, isServer: isServer}
}

// OpenStream 打开新流
//
// yamux 的 OpenStream 不支持 context，在单独的 goroutine 中等待。
func (m *Muxer) OpenStream(ctx context.Context) (pkgif.MuxedStream, error) {
	if m.IsClosed() {
		return nil, ErrMuxerClosed
	}

	type result struct {
		stream *yamux.Stream
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		s, err := m.session.OpenStream()
		resultCh <- result{s, err}
	}()

	select {
	case <-ctx.Done():
		// 迟到的流直接关闭，避免泄漏
		go func() {
			if r := <-resultCh; r.stream != nil {
				_ = r.stream.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("open stream: %w", r.err)
		}
		return newStream(r.stream), nil
	}
}

// AcceptStream 接受新流
func (m *Muxer) AcceptStream() (pkgif.MuxedStream, error) {
	s, err := m.session.AcceptStream()
	if err != nil {
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	return newStream(s), nil
}

// NumStreams 返回当前流数量
func (m *Muxer) NumStreams() int {
	return m.session.NumStreams()
}

// Close 关闭会话
func (m *Muxer) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.session.Close()
}

// IsClosed 检查是否已关闭
func (m *Muxer) IsClosed() bool {
	return m.closed.Load() || m.session.IsClosed()
}

// CloseChan 返回会话关闭时关闭的通道
func (m *Muxer) CloseChan() <-chan struct{} {
	return m.session.CloseChan()
}

// IsServer 是否服务端
func (m *Muxer) IsServer() bool {
	return m.isServer
}
