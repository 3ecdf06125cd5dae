package client

import (
	"context"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

// 确保实现接口
var _ pkgif.Transport = (*Transport)(nil)

// Transport 经由中继拨号的传输
//
// 地址形如 <relay-addr>/p2p/<relay>/p2p-circuit/p2p/<target>。
// 与中继的连接通过 Swarm 建立或复用。
type Transport struct {
	c *Client
}

// Dial 经中继建立到 target 的电路并升级
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr, peer types.NodeID) (pkgif.Connection, error) {
	c := t.c
	if c.closing.Load() {
		return nil, ErrClientClosed
	}
	if c.host == nil {
		return nil, ErrNotAttached
	}

	relayAddr, relay, target, err := addrutil.ParseRelayAddr(raddr)
	if err != nil {
		return nil, err
	}
	switch {
	case target.IsEmpty():
		target = peer
	case !peer.IsEmpty() && peer != target:
		return nil, fmt.Errorf("%w: address targets %s, expected %s", addrutil.ErrPeerIDMismatch, target.ShortString(), peer.ShortString())
	}
	if target.IsEmpty() {
		return nil, ErrNoTarget
	}

	conn, limit, err := c.connect(ctx, relayAddr, relay, target)
	c.inbox.Post(msgOutbound{relay: relay, dst: target, limit: limit, err: err})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// CanDial 检查是否为带目标的中继地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	if t.c.closing.Load() {
		return false
	}
	_, _, target, err := addrutil.ParseRelayAddr(addr)
	return err == nil && !target.IsEmpty()
}

// Listen 不支持，入站电路通过预留获得
func (t *Transport) Listen(ma.Multiaddr) (pkgif.Listener, error) {
	return nil, ErrListenUnsupported
}

// Protocols 返回支持的 multiaddr 协议代码
func (t *Transport) Protocols() []int {
	return []int{ma.P_CIRCUIT}
}

// Close 客户端由 Swarm 作为行为关闭，这里无需处理
func (t *Transport) Close() error {
	return nil
}

// connect 发送 HOP CONNECT 并升级电路（任意 goroutine，不得在事件循环中调用）
func (c *Client) connect(ctx context.Context, relayAddr ma.Multiaddr, relay, target types.NodeID) (pkgif.Connection, *pb.Limit, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	relayConn, err := c.host.Connect(ctx, relayAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect relay: %w", err)
	}
	if relayConn.IsRelayed() {
		return nil, nil, ErrRelayedRelay
	}

	st, err := relayConn.OpenStream(ctx, protocolids.RelayHop)
	if err != nil {
		return nil, nil, fmt.Errorf("open hop stream: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(dl)
	}

	resp, err := roundTrip(st, &pb.HopMessage{Type: pb.HopConnect, Peer: &pb.Peer{ID: target}})
	if err != nil {
		_ = st.Reset()
		return nil, nil, err
	}
	if err := statusError(resp.Status); err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	_ = st.SetDeadline(time.Time{})

	raddr, err := circuitRemoteAddr(relayAddr, relay, target)
	if err != nil {
		_ = st.Reset()
		return nil, nil, err
	}
	conn, err := c.upgrader.Upgrade(ctx, newCircuitConn(st, circuitLocalAddr, raddr), pkgif.DirOutbound, target)
	if err != nil {
		return nil, nil, fmt.Errorf("upgrade circuit: %w", err)
	}
	return conn, resp.Limit, nil
}

func (c *Client) handleOutbound(m msgOutbound) {
	if m.err != nil {
		log.Debug("出站电路失败", "relay", m.relay.ShortString(), "dst", m.dst.ShortString(), "error", m.err)
		c.emit(OutboundCircuitReqFailed{Relay: m.relay, Dst: m.dst, Err: m.err})
		return
	}
	log.Info("出站电路已建立", "relay", m.relay.ShortString(), "dst", m.dst.ShortString())
	c.emit(OutboundCircuitEstablished{Relay: m.relay, Dst: m.dst, Limit: m.limit})
}

func swarmAddConnection(conn pkgif.Connection) swarm.ToSwarm {
	return swarm.AddConnection{Conn: conn}
}
