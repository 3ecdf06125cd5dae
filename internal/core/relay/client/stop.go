package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// circuitLocalAddr 电路连接的本地地址
var circuitLocalAddr = ma.StringCast("/p2p-circuit")

// ============================================================================
//                              后台结果
// ============================================================================

// clientMsg 后台 goroutine 投递给事件循环的结果
type clientMsg interface {
	discard()
}

// msgReserve 预留请求
type msgReserve struct {
	addr  ma.Multiaddr
	relay types.NodeID
	reply chan reserveReply
}

// msgReserveResult 一次 RESERVE 交换的结果
type msgReserveResult struct {
	relay   types.NodeID
	connID  types.ConnID
	resv    Reservation
	renewal bool
	err     error
}

// msgInboundCircuit 入站电路升级完成
type msgInboundCircuit struct {
	src   types.NodeID
	relay types.NodeID
	limit *pb.Limit
	conn  pkgif.Connection
	err   error
}

// msgInboundDenied 拒绝了入站电路
type msgInboundDenied struct {
	src    types.NodeID
	relay  types.NodeID
	status pb.Status
}

// msgOutbound 出站电路结果
type msgOutbound struct {
	relay types.NodeID
	dst   types.NodeID
	limit *pb.Limit
	err   error
}

func (m msgReserve) respond(r reserveReply) {
	if m.reply != nil {
		m.reply <- r
	}
}

func (m msgReserve) discard()       { m.respond(reserveReply{err: ErrClientClosed}) }
func (m msgReserveResult) discard() {}
func (m msgInboundDenied) discard() {}
func (m msgOutbound) discard()      {}

func (m msgInboundCircuit) discard() {
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// ============================================================================
//                              STOP
// ============================================================================

// handleStop 应答中继的 STOP 请求并升级电路（后台 goroutine）
//
// reserved 由事件循环在流到达时判定。
func (c *Client) handleStop(st pkgif.Stream, relay types.NodeID, relayAddr ma.Multiaddr, reserved bool) {
	_ = st.SetDeadline(time.Now().Add(c.cfg.ConnectTimeout))

	deny := func(src types.NodeID, status pb.Status) {
		_ = pb.WriteMsg(st, &pb.StopMessage{Type: pb.StopStatus, Status: status})
		_ = st.Close()
		c.inbox.Post(msgInboundDenied{src: src, relay: relay, status: status})
	}
	fail := func(src types.NodeID, err error) {
		_ = st.Reset()
		c.inbox.Post(msgInboundCircuit{src: src, relay: relay, err: err})
	}

	var msg pb.StopMessage
	if err := pb.ReadMsg(st, &msg); err != nil {
		if errors.Is(err, pb.ErrMalformedMessage) || errors.Is(err, pb.ErrMessageTooLarge) {
			deny(types.EmptyNodeID, pb.StatusMalformedMessage)
			return
		}
		fail(types.EmptyNodeID, err)
		return
	}
	if msg.Type != pb.StopConnect {
		deny(types.EmptyNodeID, pb.StatusUnexpectedMessage)
		return
	}
	if msg.Peer == nil {
		deny(types.EmptyNodeID, pb.StatusMalformedMessage)
		return
	}
	src := msg.Peer.ID
	if !reserved {
		log.Debug("没有预留，拒绝入站电路", "relay", relay.ShortString(), "src", src.ShortString())
		deny(src, pb.StatusPermissionDenied)
		return
	}

	if err := pb.WriteMsg(st, &pb.StopMessage{Type: pb.StopStatus, Status: pb.StatusOK}); err != nil {
		fail(src, err)
		return
	}
	_ = st.SetDeadline(time.Time{})

	raddr, err := circuitRemoteAddr(relayAddr, relay, src)
	if err != nil {
		fail(src, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := c.upgrader.Upgrade(ctx, newCircuitConn(st, circuitLocalAddr, raddr), pkgif.DirInbound, src)
	if err != nil {
		c.inbox.Post(msgInboundCircuit{src: src, relay: relay, err: fmt.Errorf("upgrade circuit: %w", err)})
		return
	}
	c.inbox.Post(msgInboundCircuit{src: src, relay: relay, limit: msg.Limit, conn: conn})
}

func (c *Client) handleInboundCircuit(m msgInboundCircuit) {
	if m.err != nil {
		log.Debug("入站电路失败", "relay", m.relay.ShortString(), "src", m.src.ShortString(), "error", m.err)
		c.emit(InboundCircuitReqFailed{Src: m.src, Relay: m.relay, Err: m.err})
		return
	}
	if c.closed {
		m.discard()
		return
	}

	log.Info("入站电路已建立", "relay", m.relay.ShortString(), "src", m.src.ShortString())
	c.emit(InboundCircuitEstablished{Src: m.src, Relay: m.relay, Limit: m.limit})
	c.out = append(c.out, swarmAddConnection(m.conn))
}

// circuitRemoteAddr 构建 <relay-addr>/p2p/<relay>/p2p-circuit/p2p/<peer>
func circuitRemoteAddr(relayAddr ma.Multiaddr, relay, peer types.NodeID) (ma.Multiaddr, error) {
	addr, err := addrutil.CircuitAddr(relayAddr, relay)
	if err != nil {
		return nil, err
	}
	return addrutil.WithPeer(addr, peer)
}
