package swarm

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// dialReply 拨号结果
type dialReply struct {
	conn pkgif.Connection
	err  error
}

// msgDial 拨号请求
type msgDial struct {
	addr  ma.Multiaddr
	peer  types.NodeID
	reply chan dialReply
}

// msgDialResult 后台拨号完成
type msgDialResult struct {
	addr  ma.Multiaddr
	peer  types.NodeID
	conn  pkgif.Connection
	err   error
	reply chan dialReply
}

func (m msgDial) discard() {}

func (m msgDialResult) discard() {
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// Connect 连接到地址并等待连接登记完成
//
// 地址末尾的 /p2p/<id> 为期望的对端（中继电路地址取目标节点）。
// 已有到该节点的连接时直接返回。不得在事件循环中调用。
func (s *Swarm) Connect(ctx context.Context, addr ma.Multiaddr) (pkgif.Connection, error) {
	_, peer, err := addrutil.SplitPeer(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	if peer == s.localPeer {
		return nil, ErrDialToSelf
	}

	reply := make(chan dialReply, 1)
	s.inbox.Post(msgDial{addr: addr, peer: peer, reply: reply})

	select {
	case r := <-reply:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSwarmClosed
	}
}

// Dial 发起异步拨号（任意 goroutine），结果以事件报告
func (s *Swarm) Dial(addr ma.Multiaddr) {
	peer := addrutil.PeerFromAddr(addr)
	s.inbox.Post(msgDial{addr: addr, peer: peer})
}

// handleDial 处理拨号请求（仅事件循环）
func (s *Swarm) handleDial(m msgDial) {
	if !m.peer.IsEmpty() {
		if c := s.Connection(m.peer); c != nil {
			m.respond(c, nil)
			return
		}
	}
	s.startDial(m.addr, m.peer, m.reply)
}

func (m msgDial) respond(c pkgif.Connection, err error) {
	if m.reply != nil {
		m.reply <- dialReply{conn: c, err: err}
	}
}

// startDial 在后台拨号（仅事件循环）
func (s *Swarm) startDial(addr ma.Multiaddr, peer types.NodeID, reply chan dialReply) {
	fail := func(err error) {
		s.emit(OutgoingConnectionError{Peer: peer, Addr: addr, Err: err})
		if reply != nil {
			reply <- dialReply{err: err}
		}
	}

	if !peer.IsEmpty() && peer == s.localPeer {
		fail(ErrDialToSelf)
		return
	}
	t := s.transportFor(addr)
	if t == nil {
		fail(fmt.Errorf("%w: %w: %s", ErrDialFailed, ErrNoTransport, addr))
		return
	}

	log.Debug("开始拨号", "peer", peer.ShortString(), "addr", addr)
	s.emit(Dialing{Peer: peer, Addr: addr})

	parent := s.runCtx
	if parent == nil {
		parent = context.Background()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(parent, s.cfg.DialTimeout)
		defer cancel()

		conn, err := t.Dial(ctx, addr, peer)
		s.inbox.Post(msgDialResult{addr: addr, peer: peer, conn: conn, err: err, reply: reply})
	}()
}

// handleDialResult 处理拨号结果（仅事件循环）
func (s *Swarm) handleDialResult(m msgDialResult) {
	respond := func(c pkgif.Connection, err error) {
		if m.reply != nil {
			m.reply <- dialReply{conn: c, err: err}
		}
	}

	if m.err != nil {
		err := fmt.Errorf("%w: %w", ErrDialFailed, m.err)
		log.Debug("拨号失败", "peer", m.peer.ShortString(), "addr", m.addr, "error", m.err)
		s.emit(OutgoingConnectionError{Peer: m.peer, Addr: m.addr, Err: err})
		respond(nil, err)
		return
	}

	if err := s.addConnection(m.conn); err != nil {
		s.emit(OutgoingConnectionError{Peer: m.peer, Addr: m.addr, Err: err})
		respond(nil, err)
		return
	}
	respond(m.conn, nil)
}

// transportFor 选择可拨号该地址的传输层
//
// 中继电路地址优先交给声明 P_CIRCUIT 的传输层。
func (s *Swarm) transportFor(addr ma.Multiaddr) pkgif.Transport {
	relayed := relayedEndpoint(addr)
	for _, t := range s.transports {
		if relayed != handlesCircuit(t) {
			continue
		}
		if t.CanDial(addr) {
			return t
		}
	}
	return nil
}

func handlesCircuit(t pkgif.Transport) bool {
	for _, p := range t.Protocols() {
		if p == ma.P_CIRCUIT {
			return true
		}
	}
	return false
}
