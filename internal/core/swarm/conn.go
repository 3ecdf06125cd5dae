package swarm

import (
	"time"

	ma "github.com/multiformats/go-multiaddr"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// ============================================================================
//                              内部消息
// ============================================================================

// swarmMsg 后台 goroutine 投递给事件循环的消息
type swarmMsg interface {
	// discard 在关闭时释放消息持有的资源
	discard()
}

// msgConnAdded 监听器接受了入站连接
type msgConnAdded struct {
	conn pkgif.Connection
}

// msgConnClosed 连接的 AcceptStream 返回错误
type msgConnClosed struct {
	conn pkgif.Connection
}

// msgInboundStream 入站流完成协议协商
type msgInboundStream struct {
	stream pkgif.Stream
}

func (m msgConnAdded) discard()     { _ = m.conn.Close() }
func (m msgConnClosed) discard()    {}
func (m msgInboundStream) discard() { _ = m.stream.Reset() }

func (s *Swarm) drainInbox() bool {
	msgs, more := s.inbox.Drain(drainBudget)
	for _, m := range msgs {
		switch m := m.(type) {
		case msgConnAdded:
			if err := s.addConnection(m.conn); err != nil {
				s.emit(IncomingConnectionError{
					LocalAddr:  m.conn.LocalMultiaddr(),
					RemoteAddr: m.conn.RemoteMultiaddr(),
					Err:        err,
				})
			}
		case msgConnClosed:
			s.removeConnection(m.conn)
		case msgInboundStream:
			s.routeInboundStream(m.stream)
		case msgDial:
			s.handleDial(m)
		case msgDialResult:
			s.handleDialResult(m)
		case msgListenerAdded:
			s.handleListenerAdded(m)
		case msgListenerClosed:
			s.handleListenerClosed(m)
		}
	}
	return more
}

// ============================================================================
//                              连接表
// ============================================================================

// addConnection 登记连接并通知行为
//
// 同一连接重复登记时忽略。到自身的连接被关闭并返回 ErrDialToSelf。
func (s *Swarm) addConnection(c pkgif.Connection) error {
	if _, ok := s.connByID[c.ID()]; ok {
		return nil
	}
	if c.RemotePeer() == s.localPeer {
		_ = c.Close()
		return ErrDialToSelf
	}
	if c.IsClosed() {
		return ErrConnClosed
	}

	peer := c.RemotePeer()
	s.connByID[c.ID()] = c
	s.conns[peer] = append([]pkgif.Connection{c}, s.conns[peer]...)

	s.wg.Add(1)
	go s.acceptStreams(c)

	stat := c.Stat()
	log.Debug("连接已建立",
		"peer", peer.ShortString(),
		"conn", c.ID(),
		"addr", c.RemoteMultiaddr(),
		"direction", stat.Direction,
		"relayed", c.IsRelayed())

	for _, b := range s.behaviours {
		b.OnConnectionEstablished(c)
	}
	s.emit(ConnectionEstablished{
		Peer:           peer,
		ConnID:         c.ID(),
		Endpoint:       c.RemoteMultiaddr(),
		Direction:      stat.Direction,
		Relayed:        c.IsRelayed(),
		NumEstablished: len(s.conns[peer]),
	})
	return nil
}

// removeConnection 从连接表移除并通知行为
//
// 未登记或已移除的连接被忽略。
func (s *Swarm) removeConnection(c pkgif.Connection) {
	if _, ok := s.connByID[c.ID()]; !ok {
		return
	}
	delete(s.connByID, c.ID())

	peer := c.RemotePeer()
	list := s.conns[peer]
	for i, other := range list {
		if other.ID() == c.ID() {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.conns, peer)
	} else {
		s.conns[peer] = list
	}

	log.Debug("连接已关闭", "peer", peer.ShortString(), "conn", c.ID(), "remaining", len(list))

	for _, b := range s.behaviours {
		b.OnConnectionClosed(c)
	}
	s.emit(ConnectionClosed{
		Peer:           peer,
		ConnID:         c.ID(),
		Endpoint:       c.RemoteMultiaddr(),
		Relayed:        c.IsRelayed(),
		NumEstablished: len(list),
	})
}

// closeConnections 处理 CloseConnection 动作
func (s *Swarm) closeConnections(peer types.NodeID, id types.ConnID) {
	var targets []pkgif.Connection
	if id != 0 {
		if c, ok := s.connByID[id]; ok {
			targets = append(targets, c)
		}
	} else {
		targets = append(targets, s.conns[peer]...)
	}

	for _, c := range targets {
		s.removeConnection(c)
		s.wg.Add(1)
		go func(c pkgif.Connection) {
			defer s.wg.Done()
			_ = c.Close()
		}(c)
	}
}

// ============================================================================
//                              入站流
// ============================================================================

// acceptStreams 接受连接上的入站流，直到连接关闭
func (s *Swarm) acceptStreams(c pkgif.Connection) {
	defer s.wg.Done()
	for {
		st, err := c.AcceptStream()
		if err != nil {
			s.inbox.Post(msgConnClosed{conn: c})
			return
		}
		s.wg.Add(1)
		go s.negotiateInbound(st)
	}
}

// negotiateInbound 在后台完成 multistream-select 协商
func (s *Swarm) negotiateInbound(st pkgif.Stream) {
	defer s.wg.Done()

	_ = st.SetDeadline(time.Now().Add(s.cfg.NegotiateTimeout))
	proto, _, err := s.mux.Negotiate(st)
	if err != nil {
		log.Debug("入站流协商失败", "peer", st.Conn().RemotePeer().ShortString(), "error", err)
		_ = st.Reset()
		return
	}
	_ = st.SetDeadline(time.Time{})
	st.SetProtocol(proto)
	s.inbox.Post(msgInboundStream{stream: st})
}

// routeInboundStream 将入站流交给注册该协议的行为
func (s *Swarm) routeInboundStream(st pkgif.Stream) {
	if _, ok := s.connByID[st.Conn().ID()]; !ok {
		_ = st.Reset()
		return
	}
	b, ok := s.protocols[st.Protocol()]
	if !ok {
		_ = st.Reset()
		return
	}
	b.HandleInboundStream(st)
}

// relayedEndpoint 判断地址是否为中继地址
func relayedEndpoint(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	_, err := addr.ValueForProtocol(ma.P_CIRCUIT)
	return err == nil
}
