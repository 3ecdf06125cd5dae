package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// ============================================================================
//                              后台结果
// ============================================================================

// serverMsg 后台 goroutine 投递给事件循环的结果
type serverMsg interface {
	// discard 在关闭时释放消息持有的流
	discard()
}

// msgHopRequest 读取到 HOP 请求
type msgHopRequest struct {
	stream pkgif.Stream
	msg    *pb.HopMessage
	err    error
}

// msgReserveWritten 预留应答写出完成
type msgReserveWritten struct {
	peer    types.NodeID
	connID  types.ConnID
	expiry  time.Time
	renewed bool
	addrs   []ma.Multiaddr
	err     error
}

// msgStopResult 目标对 STOP 的应答
type msgStopResult struct {
	id     uuid.UUID
	stream pkgif.Stream
	status pb.Status
	err    error
}

// msgCircuitEnd 转发 goroutine 结束
type msgCircuitEnd struct {
	id     uuid.UUID
	reason CloseReason
}

func (m msgHopRequest) discard()     { _ = m.stream.Reset() }
func (m msgReserveWritten) discard() {}
func (m msgCircuitEnd) discard()     {}

func (m msgStopResult) discard() {
	if m.stream != nil {
		_ = m.stream.Reset()
	}
}

// ============================================================================
//                              HOP 请求
// ============================================================================

// readHop 在截止时间内读取一条 HOP 请求（后台 goroutine）
func (s *Server) readHop(st pkgif.Stream) {
	_ = st.SetDeadline(time.Now().Add(s.policy.ReservationAcceptTimeout))

	var msg pb.HopMessage
	err := pb.ReadMsg(st, &msg)
	if err == nil && msg.Type == pb.HopConnect {
		// CONNECT 流接受后用于转发，不再受应答窗口限制
		_ = st.SetDeadline(time.Time{})
	}
	s.inbox.Post(msgHopRequest{stream: st, msg: &msg, err: err})
}

func (s *Server) handleHopRequest(m msgHopRequest) {
	st := m.stream
	peer := st.Conn().RemotePeer()

	if m.err != nil {
		if errors.Is(m.err, pb.ErrMalformedMessage) || errors.Is(m.err, pb.ErrMessageTooLarge) {
			log.Debug("HOP 请求格式错误", "peer", peer.ShortString(), "error", m.err)
			s.emit(ProtocolViolation{Peer: peer, Err: m.err})
			s.respond(st, pb.StatusMalformedMessage, true)
			return
		}
		log.Debug("读取 HOP 请求失败", "peer", peer.ShortString(), "error", m.err)
		_ = st.Reset()
		return
	}

	switch m.msg.Type {
	case pb.HopReserve:
		s.handleReserve(st, m.msg)
	case pb.HopConnect:
		s.handleConnect(st, m.msg)
	default:
		err := fmt.Errorf("%w: %s", pb.ErrUnexpectedMessage, m.msg.Type)
		s.emit(ProtocolViolation{Peer: peer, Err: err})
		s.respond(st, pb.StatusUnexpectedMessage, true)
	}
}

// respond 在后台写出状态应答并关闭流
func (s *Server) respond(st pkgif.Stream, status pb.Status, reset bool) {
	timeout := s.policy.ReservationAcceptTimeout
	s.spawn(func() {
		_ = st.SetWriteDeadline(time.Now().Add(timeout))
		if err := pb.WriteMsg(st, &pb.HopMessage{Type: pb.HopStatus, Status: status}); err != nil || reset {
			_ = st.Reset()
			return
		}
		_ = st.Close()
	})
}

// ============================================================================
//                              预留
// ============================================================================

func (s *Server) handleReserve(st pkgif.Stream, msg *pb.HopMessage) {
	conn := st.Conn()
	peer := conn.RemotePeer()

	var requested time.Duration
	if msg.Limit != nil {
		requested = msg.Limit.Duration
	}

	d := s.HandleReservationRequest(peer, conn.ID(), requested)
	if !d.Accepted {
		s.emit(ReservationReqDenied{Src: peer, Reason: d.Reason})
		s.respond(st, d.Reason.Status(), false)
		return
	}

	addrs := s.reservationAddrs()
	resp := &pb.HopMessage{
		Type:        pb.HopStatus,
		Status:      pb.StatusOK,
		Reservation: &pb.Reservation{Expire: d.Expiry, Addrs: addrs},
		Limit:       s.policy.limit(),
	}
	result := msgReserveWritten{
		peer:    peer,
		connID:  conn.ID(),
		expiry:  d.Expiry,
		renewed: d.Renewed,
		addrs:   addrs,
	}
	s.spawn(func() {
		// 截止时间沿用读取请求时设置的应答窗口
		if err := pb.WriteMsg(st, resp); err != nil {
			_ = st.Reset()
			result.err = err
		} else {
			_ = st.Close()
		}
		s.inbox.Post(result)
	})
}

// HandleReservationRequest 按策略处理预留请求（仅事件循环）
//
// 接受时新预留处于 Pending，应答写出后才转为 Active；续期直接更新
// 过期时间，写失败时回滚。
func (s *Server) HandleReservationRequest(peer types.NodeID, connID types.ConnID, requested time.Duration) Decision {
	now := s.clock.Now()
	deny := func(r DenyReason) Decision {
		s.stats.ReservationsDenied++
		log.Debug("拒绝预留", "peer", peer.ShortString(), "reason", r)
		return denied(r)
	}

	if !s.policy.Permits(peer) {
		return deny(ReasonPermissionDenied)
	}
	conn := s.host.ConnectionByID(connID)
	if conn == nil || conn.IsRelayed() {
		return deny(ReasonPermissionDenied)
	}

	existing, ok := s.reservations[peer]
	if ok && existing.Status == ReservationPending {
		return deny(ReasonRefused)
	}
	if !s.limiter.allow(peer, now) {
		return deny(ReasonResourceLimitExceeded)
	}
	if !ok && s.policy.MaxReservations > 0 && len(s.reservations) >= s.policy.MaxReservations {
		return deny(ReasonResourceLimitExceeded)
	}

	expiry := now.Add(s.policy.clampDuration(requested))
	if ok {
		existing.prevExpiry, existing.prevConn = existing.Expiry, existing.ConnID
		existing.Expiry = expiry
		existing.ConnID = connID
		existing.Renewed = true
		return Decision{Accepted: true, Expiry: expiry, Renewed: true}
	}

	s.reservations[peer] = &Reservation{
		Peer:   peer,
		ConnID: connID,
		Status: ReservationPending,
		Expiry: expiry,
	}
	return Decision{Accepted: true, Expiry: expiry}
}

func (s *Server) handleReserveWritten(m msgReserveWritten) {
	r, ok := s.reservations[m.peer]

	if m.err != nil {
		if ok {
			if m.renewed {
				if r.Expiry.Equal(m.expiry) {
					r.Expiry, r.ConnID = r.prevExpiry, r.prevConn
				}
			} else if r.Status == ReservationPending {
				r.Status = ReservationDenied
				delete(s.reservations, m.peer)
			}
		}
		log.Debug("预留应答写出失败", "peer", m.peer.ShortString(), "error", m.err)
		s.stats.ReservationsDenied++
		s.emit(ReservationReqDenied{Src: m.peer, Reason: ReasonTimeout})
		return
	}

	// 等待写出期间连接已断开
	if !ok {
		return
	}
	r.Status = ReservationActive
	r.Addrs = m.addrs
	s.stats.ReservationsAccepted++
	log.Info("预留已授予",
		"peer", m.peer.ShortString(),
		"renewed", m.renewed,
		"expiry", m.expiry.Format(time.RFC3339))
	s.emit(ReservationReqAccepted{Src: m.peer, Renewed: m.renewed, Expiry: m.expiry})
}

// reservationAddrs 构建通告给预留方的中继地址
func (s *Server) reservationAddrs() []ma.Multiaddr {
	local := s.host.LocalPeer()
	seen := make(map[string]struct{})
	var out []ma.Multiaddr
	for _, a := range append(s.host.ListenAddrs(), s.host.ExternalAddrs()...) {
		if addrutil.IsRelayAddr(a) || manet.IsIPUnspecified(a) {
			continue
		}
		ca, err := addrutil.CircuitAddr(a, local)
		if err != nil {
			continue
		}
		if _, dup := seen[ca.String()]; dup {
			continue
		}
		seen[ca.String()] = struct{}{}
		out = append(out, ca)
	}
	return out
}
