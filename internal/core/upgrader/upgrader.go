// Package upgrader 实现连接升级器
package upgrader

import (
	"context"
	"fmt"
	"time"

	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("upgrader")

// defaultNegotiateTimeout 默认协商超时
const defaultNegotiateTimeout = 10 * time.Second

// Config 升级器配置
type Config struct {
	// SecurityTransports 安全传输，按优先级排列
	SecurityTransports []pkgif.SecureTransport

	// StreamMuxers 多路复用器，按优先级排列
	StreamMuxers []pkgif.StreamMuxer

	// NegotiateTimeout 单次 multistream-select 协商超时
	NegotiateTimeout time.Duration
}

// Upgrader 连接升级器
//
// 把原始连接（TCP 或中继电路上的字节流）依次升级为：
// 安全连接（Noise）→ 多路复用会话（yamux）→ Connection。
type Upgrader struct {
	identity           pkgif.Identity
	securityTransports []pkgif.SecureTransport
	streamMuxers       []pkgif.StreamMuxer
	negotiateTimeout   time.Duration
}

// New 创建连接升级器
func New(id pkgif.Identity, cfg Config) (*Upgrader, error) {
	if id == nil {
		return nil, ErrNilIdentity
	}
	if len(cfg.SecurityTransports) == 0 {
		return nil, ErrNoSecurityTransport
	}
	if len(cfg.StreamMuxers) == 0 {
		return nil, ErrNoStreamMuxer
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = defaultNegotiateTimeout
	}
	return &Upgrader{
		identity:           id,
		securityTransports: cfg.SecurityTransports,
		streamMuxers:       cfg.StreamMuxers,
		negotiateTimeout:   cfg.NegotiateTimeout,
	}, nil
}

// LocalPeer 返回本地 NodeID
func (u *Upgrader) LocalPeer() types.NodeID {
	return u.identity.ID()
}

// Upgrade 升级连接
//
// 升级流程：
//  1. 协商安全协议（multistream-select）
//  2. 安全握手，出站时校验 remotePeer
//  3. 协商多路复用器（multistream-select）
//  4. 建立多路复用会话
//
// 远程地址包含 /p2p-circuit 时，连接被标记为中继连接。
// 失败时关闭底层连接。
func (u *Upgrader) Upgrade(ctx context.Context, conn manet.Conn, dir pkgif.Direction, remotePeer types.NodeID) (*Conn, error) {
	if dir == pkgif.DirOutbound && remotePeer.IsEmpty() {
		_ = conn.Close()
		return nil, ErrNoPeerID
	}
	isServer := dir == pkgif.DirInbound

	// 1. 协商安全协议
	secTransport, err := u.negotiateSecurity(ctx, conn, isServer)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("security negotiation: %w", err)
	}

	// 2. 安全握手
	var secConn pkgif.SecureConn
	if isServer {
		secConn, err = secTransport.SecureInbound(ctx, conn, remotePeer)
	} else {
		secConn, err = secTransport.SecureOutbound(ctx, conn, remotePeer)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("security handshake: %w", err)
	}

	// 3. 协商多路复用器
	muxer, err := u.negotiateMuxer(ctx, secConn, isServer)
	if err != nil {
		_ = secConn.Close()
		return nil, fmt.Errorf("muxer negotiation: %w", err)
	}

	// 4. 建立多路复用会话
	muxed, err := muxer.NewConn(secConn, isServer)
	if err != nil {
		_ = secConn.Close()
		return nil, fmt.Errorf("muxer setup: %w", err)
	}

	c := newConn(muxed, secConn, conn.LocalMultiaddr(), conn.RemoteMultiaddr(), dir, u.negotiateTimeout)
	log.Debug("连接升级成功",
		"conn", c.ID(),
		"remotePeer", c.RemotePeer().ShortString(),
		"direction", dir,
		"relayed", c.IsRelayed(),
		"security", secTransport.ID(),
		"muxer", muxer.ID())
	return c, nil
}
