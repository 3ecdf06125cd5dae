package upgrader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"

	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// nextConnID 进程内连接序号
var nextConnID atomic.Uint64

// 确保实现接口
var _ pkgif.Connection = (*Conn)(nil)

// Conn 已升级的连接
type Conn struct {
	id      types.ConnID
	muxed   pkgif.MuxedConn
	secure  pkgif.SecureConn
	laddr   ma.Multiaddr
	raddr   ma.Multiaddr
	dir     pkgif.Direction
	opened  time.Time
	relayed bool

	negotiateTimeout time.Duration
	closed           atomic.Bool
}

func newConn(muxed pkgif.MuxedConn, secure pkgif.SecureConn, laddr, raddr ma.Multiaddr, dir pkgif.Direction, negotiateTimeout time.Duration) *Conn {
	return &Conn{
		id:               types.ConnID(nextConnID.Add(1)),
		muxed:            muxed,
		secure:           secure,
		laddr:            laddr,
		raddr:            raddr,
		dir:              dir,
		opened:           time.Now(),
		relayed:          addrutil.IsRelayAddr(raddr),
		negotiateTimeout: negotiateTimeout,
	}
}

// ID 返回连接序号
func (c *Conn) ID() types.ConnID { return c.id }

// LocalPeer 返回本地节点 ID
func (c *Conn) LocalPeer() types.NodeID { return c.secure.LocalPeer() }

// RemotePeer 返回远程节点 ID
func (c *Conn) RemotePeer() types.NodeID { return c.secure.RemotePeer() }

// RemotePublicKey 返回远程节点的序列化公钥
func (c *Conn) RemotePublicKey() []byte { return c.secure.RemotePublicKey() }

// LocalMultiaddr 返回本地地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr { return c.laddr }

// RemoteMultiaddr 返回远程地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.raddr }

// IsRelayed 是否中继连接
func (c *Conn) IsRelayed() bool { return c.relayed }

// Stat 返回连接统计
func (c *Conn) Stat() pkgif.ConnectionStat {
	return pkgif.ConnectionStat{
		Direction:  c.dir,
		Opened:     c.opened,
		Relayed:    c.relayed,
		NumStreams: c.muxed.NumStreams(),
	}
}

// OpenStream 打开新流并协商协议
func (c *Conn) OpenStream(ctx context.Context, protocol types.ProtocolID) (pkgif.Stream, error) {
	if c.IsClosed() {
		return nil, ErrConnClosed
	}

	ms, err := c.muxed.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	restore, err := withNegotiateDeadline(ctx, ms, c.negotiateTimeout)
	if err != nil {
		_ = ms.Reset()
		return nil, err
	}
	if err := mss.SelectProtoOrFail(protocol, ms); err != nil {
		_ = ms.Reset()
		return nil, fmt.Errorf("%w: %s: %v", ErrNegotiationFailed, protocol, err)
	}
	restore()

	return newStream(ms, c, protocol), nil
}

// AcceptStream 接受入站流（协议尚未协商）
func (c *Conn) AcceptStream() (pkgif.Stream, error) {
	ms, err := c.muxed.AcceptStream()
	if err != nil {
		return nil, err
	}
	return newStream(ms, c, ""), nil
}

// Close 关闭连接
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return multierr.Combine(c.muxed.Close(), c.secure.Close())
}

// IsClosed 检查连接是否已关闭
func (c *Conn) IsClosed() bool {
	return c.closed.Load() || c.muxed.IsClosed()
}

// String 返回连接描述
func (c *Conn) String() string {
	return fmt.Sprintf("conn#%d(%s %s %s)", c.id, c.dir, c.RemotePeer().ShortString(), c.raddr)
}
