package tcp

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-relay/internal/core/upgrader"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("transport.tcp")

// defaultHandshakeTimeout 入站连接升级超时
const defaultHandshakeTimeout = 15 * time.Second

// 确保实现接口
var _ pkgif.Transport = (*Transport)(nil)

// Transport TCP 传输
//
// 拨号与监听得到的原始连接都经过 upgrader 升级后才交给上层。
type Transport struct {
	upgrader         *upgrader.Upgrader
	handshakeTimeout time.Duration
	closed           atomic.Bool
}

// NewTransport 创建 TCP 传输
//
// handshakeTimeout 为入站连接升级的超时，0 使用默认值。
func NewTransport(u *upgrader.Upgrader, handshakeTimeout time.Duration) *Transport {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	return &Transport{upgrader: u, handshakeTimeout: handshakeTimeout}
}

// Dial 拨号并升级
//
// peer 为空时使用地址中的 /p2p/<id>；两者都缺失时无法完成出站校验。
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr, peer types.NodeID) (pkgif.Connection, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	if !isTCPAddr(raddr) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, raddr)
	}

	dialAddr, addrPeer, err := addrutil.SplitPeer(raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	if peer.IsEmpty() {
		peer = addrPeer
	} else if !addrPeer.IsEmpty() && addrPeer != peer {
		return nil, fmt.Errorf("%w: address peer %s does not match %s", ErrInvalidAddr, addrPeer.ShortString(), peer.ShortString())
	}

	var d manet.Dialer
	raw, err := d.DialContext(ctx, dialAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", dialAddr, err)
	}

	conn, err := t.upgrader.Upgrade(ctx, raw, pkgif.DirOutbound, peer)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// CanDial 检查是否为 TCP 地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return !t.closed.Load() && isTCPAddr(addr)
}

// Listen 在指定地址上监听
func (t *Transport) Listen(laddr ma.Multiaddr) (pkgif.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	if !isTCPAddr(laddr) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, laddr)
	}

	ln, err := manet.Listen(laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", laddr, err)
	}
	log.Debug("TCP 监听", "addr", ln.Multiaddr())
	return newListener(ln, t.upgrader, t.handshakeTimeout), nil
}

// Protocols 返回支持的 multiaddr 协议代码
func (t *Transport) Protocols() []int {
	return []int{ma.P_TCP}
}

// Close 关闭传输
//
// 已建立的连接与监听器由 Swarm 负责关闭。
func (t *Transport) Close() error {
	t.closed.Store(true)
	return nil
}
