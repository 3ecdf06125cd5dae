// Package relaytest 提供中继行为测试用的内存 Host、连接与流
//
// 连接与流基于 net.Pipe，不经过安全握手与多路复用，供 server 与
// client 的单元测试在不启动 Swarm 的情况下直接驱动行为。
package relaytest

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// ErrConnClosed 连接已关闭
var ErrConnClosed = errors.New("relaytest: connection closed")

// NodeID 由单字节生成确定的节点 ID
func NodeID(b byte) types.NodeID {
	var id types.NodeID
	for i := range id {
		id[i] = b
	}
	return id
}

// ============================================================================
//                              Host
// ============================================================================

// 确保实现接口
var (
	_ swarm.Host       = (*Host)(nil)
	_ pkgif.Connection = (*Conn)(nil)
)

// Host 内存 Host，Exec 在调用方 goroutine 中直接执行
type Host struct {
	Peer     types.NodeID
	Clk      *clock.Mock
	Listen   []ma.Multiaddr
	External []ma.Multiaddr
	Protos   []types.ProtocolID

	// ConnectFunc 为 nil 时 Connect 返回已登记的连接
	ConnectFunc func(ctx context.Context, addr ma.Multiaddr) (pkgif.Connection, error)

	mu    sync.Mutex
	conns map[types.ConnID]pkgif.Connection
	wakes atomic.Int64
}

// NewHost 创建 Host，时钟固定在 2024-01-01 UTC
func NewHost(peer types.NodeID) *Host {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return &Host{
		Peer:  peer,
		Clk:   clk,
		conns: make(map[types.ConnID]pkgif.Connection),
	}
}

// AddConn 登记连接
func (h *Host) AddConn(c pkgif.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

// RemoveConn 移除连接
func (h *Host) RemoveConn(c pkgif.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID())
}

// Wakes 返回 Wake 调用次数
func (h *Host) Wakes() int64 { return h.wakes.Load() }

func (h *Host) LocalPeer() types.NodeID { return h.Peer }
func (h *Host) Clock() clock.Clock      { return h.Clk }
func (h *Host) Wake()                   { h.wakes.Add(1) }

func (h *Host) ListenAddrs() []ma.Multiaddr   { return h.Listen }
func (h *Host) ExternalAddrs() []ma.Multiaddr { return h.External }
func (h *Host) Protocols() []types.ProtocolID { return h.Protos }

func (h *Host) Connection(peer types.NodeID) pkgif.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		if c.RemotePeer() == peer && !c.IsClosed() {
			return c
		}
	}
	return nil
}

func (h *Host) ConnectionByID(id types.ConnID) pkgif.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[id]
}

func (h *Host) Connect(ctx context.Context, addr ma.Multiaddr) (pkgif.Connection, error) {
	if h.ConnectFunc != nil {
		return h.ConnectFunc(ctx, addr)
	}
	if c := h.Connection(addrutil.PeerFromAddr(addr)); c != nil {
		return c, nil
	}
	return nil, ErrConnClosed
}

func (h *Host) Exec(_ context.Context, fn func()) error {
	fn()
	return nil
}

// ============================================================================
//                              连接
// ============================================================================

// Conn 内存连接
//
// 本端 OpenStream 打开的流，其对端通过 Opened 取得；对端打开的流
// 通过 Push 注入，由 AcceptStream 返回。
type Conn struct {
	id      types.ConnID
	local   types.NodeID
	remote  types.NodeID
	relayed bool

	opened chan *Stream
	accept chan pkgif.Stream

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// NewConn 创建连接
func NewConn(id types.ConnID, local, remote types.NodeID, relayed bool) *Conn {
	return &Conn{
		id:      id,
		local:   local,
		remote:  remote,
		relayed: relayed,
		opened:  make(chan *Stream, 16),
		accept:  make(chan pkgif.Stream, 16),
		done:    make(chan struct{}),
	}
}

// Opened 返回本端打开的流的对端
func (c *Conn) Opened() <-chan *Stream { return c.opened }

// Push 注入一条入站流
func (c *Conn) Push(s pkgif.Stream) { c.accept <- s }

func (c *Conn) ID() types.ConnID         { return c.id }
func (c *Conn) LocalPeer() types.NodeID  { return c.local }
func (c *Conn) RemotePeer() types.NodeID { return c.remote }
func (c *Conn) RemotePublicKey() []byte  { return nil }
func (c *Conn) IsRelayed() bool          { return c.relayed }
func (c *Conn) IsClosed() bool           { return c.closed.Load() }

func (c *Conn) LocalMultiaddr() ma.Multiaddr {
	return ma.StringCast("/ip4/127.0.0.1/tcp/4001")
}

func (c *Conn) RemoteMultiaddr() ma.Multiaddr {
	return ma.StringCast("/ip4/127.0.0.1/tcp/5001")
}

func (c *Conn) Stat() pkgif.ConnectionStat {
	return pkgif.ConnectionStat{Direction: pkgif.DirInbound, Relayed: c.relayed}
}

// OpenStream 打开一对管道流，本端返回，对端写入 Opened
func (c *Conn) OpenStream(ctx context.Context, proto types.ProtocolID) (pkgif.Stream, error) {
	if c.IsClosed() {
		return nil, ErrConnClosed
	}
	local, remote := Pipe(c, nil, proto)
	select {
	case c.opened <- remote:
		return local, nil
	case <-ctx.Done():
		_ = local.Close()
		return nil, ctx.Err()
	}
}

func (c *Conn) AcceptStream() (pkgif.Stream, error) {
	select {
	case s := <-c.accept:
		return s, nil
	case <-c.done:
		return nil, ErrConnClosed
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}

// ============================================================================
//                              流
// ============================================================================

// Stream 基于 net.Pipe 的流，Reset 等同于 Close
type Stream struct {
	pipe net.Conn

	mu    sync.Mutex
	proto types.ProtocolID
	conn  pkgif.Connection
}

// 确保实现接口
var _ pkgif.Stream = (*Stream)(nil)

// Pipe 创建一对相连的流
func Pipe(localConn, remoteConn pkgif.Connection, proto types.ProtocolID) (local, remote *Stream) {
	a, b := net.Pipe()
	return &Stream{pipe: a, proto: proto, conn: localConn}, &Stream{pipe: b, proto: proto, conn: remoteConn}
}

func (s *Stream) Read(p []byte) (int, error)  { return s.pipe.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.pipe.Write(p) }
func (s *Stream) Close() error                { return s.pipe.Close() }
func (s *Stream) Reset() error                { return s.pipe.Close() }

func (s *Stream) SetDeadline(t time.Time) error      { return s.pipe.SetDeadline(t) }
func (s *Stream) SetReadDeadline(t time.Time) error  { return s.pipe.SetReadDeadline(t) }
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.pipe.SetWriteDeadline(t) }

func (s *Stream) Conn() pkgif.Connection { return s.conn }

func (s *Stream) Protocol() types.ProtocolID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proto
}

func (s *Stream) SetProtocol(p types.ProtocolID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proto = p
}
