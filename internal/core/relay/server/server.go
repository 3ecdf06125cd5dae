package server

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("relay.server")

// Name 行为名称
const Name = "relay-server"

// 确保实现接口
var _ swarm.NetworkBehaviour = (*Server)(nil)

// Server 中继服务端
//
// 预留表、电路表与统计只在事件循环中访问。
type Server struct {
	policy  Policy
	limiter *rateLimiter

	host  swarm.Host
	clock clock.Clock

	reservations map[types.NodeID]*Reservation
	circuits     map[uuid.UUID]*circuit
	stats        Stats

	inbox *swarm.Mailbox[serverMsg]
	out   []swarm.ToSwarm

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New 创建中继服务端
func New(policy Policy) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		policy:       policy,
		limiter:      newRateLimiter(policy.ReservationRate, policy.ReservationBurst),
		clock:        clock.New(),
		reservations: make(map[types.NodeID]*Reservation),
		circuits:     make(map[uuid.UUID]*circuit),
		inbox:        swarm.NewMailbox[serverMsg](),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ============================================================================
//                              NetworkBehaviour
// ============================================================================

// Name 返回行为名称
func (s *Server) Name() string { return Name }

// Protocols 返回处理的入站协议
func (s *Server) Protocols() []types.ProtocolID {
	return []types.ProtocolID{protocolids.RelayHop}
}

// Attach 绑定 Swarm
func (s *Server) Attach(h swarm.Host) {
	s.host = h
	s.clock = h.Clock()
	s.inbox.SetWaker(h.Wake)
}

// OnConnectionEstablished 无需处理
func (s *Server) OnConnectionEstablished(pkgif.Connection) {}

// OnConnectionClosed 使该连接上的预留失效，并关闭经过该连接的电路
func (s *Server) OnConnectionClosed(conn pkgif.Connection) {
	peer := conn.RemotePeer()
	if r, ok := s.reservations[peer]; ok && r.ConnID == conn.ID() {
		r.Status = ReservationExpired
		delete(s.reservations, peer)
		log.Debug("连接断开，预留失效", "peer", peer.ShortString(), "conn", conn.ID())
		s.emit(ReservationClosed{Src: peer})
	}

	for _, c := range s.circuits {
		if c.srcConn == conn.ID() || c.dstConn == conn.ID() {
			s.closeCircuit(c, CloseConnection)
		}
	}
}

// HandleInboundStream 在后台读取 HOP 请求
func (s *Server) HandleInboundStream(st pkgif.Stream) {
	if s.closed {
		_ = st.Reset()
		return
	}
	s.spawn(func() { s.readHop(st) })
}

// Tick 处理预留与电路超时
func (s *Server) Tick(now time.Time) {
	for peer, r := range s.reservations {
		if r.Status == ReservationActive && !now.Before(r.Expiry) {
			r.Status = ReservationExpired
			delete(s.reservations, peer)
			log.Debug("预留已过期", "peer", peer.ShortString())
			s.emit(ReservationTimedOut{Src: peer})
		}
	}

	for _, c := range s.circuits {
		switch c.status {
		case StateEstablishing:
			if !now.Before(c.deadline) {
				s.timeoutCircuit(c, PhaseEstablish)
			}
		case StateActive:
			if s.policy.MaxCircuitDuration > 0 && !now.Before(c.deadline) {
				s.timeoutCircuit(c, PhaseDuration)
			} else if s.policy.CircuitIdleTimeout > 0 && now.Sub(c.counters.idleSince()) >= s.policy.CircuitIdleTimeout {
				s.timeoutCircuit(c, PhaseIdle)
			}
		}
	}

	s.limiter.gc(now)
}

// Poll 处理后台 goroutine 投递的结果
func (s *Server) Poll(budget int) ([]swarm.ToSwarm, bool) {
	msgs, more := s.inbox.Drain(budget)
	for _, m := range msgs {
		switch m := m.(type) {
		case msgHopRequest:
			s.handleHopRequest(m)
		case msgReserveWritten:
			s.handleReserveWritten(m)
		case msgStopResult:
			s.handleStopResult(m)
		case msgCircuitEnd:
			if c, ok := s.circuits[m.id]; ok {
				s.closeCircuit(c, m.reason)
			}
		}
	}

	out := s.out
	s.out = nil
	return out, more
}

// Close 关闭全部电路并等待后台 goroutine 退出
//
// 由 Swarm 在事件循环退出后调用。
func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	for _, c := range s.circuits {
		s.closeCircuit(c, CloseShutdown)
	}
	s.wg.Wait()

	leftovers, _ := s.inbox.Drain(0)
	for _, m := range leftovers {
		m.discard()
	}
	s.reservations = make(map[types.NodeID]*Reservation)
	return nil
}

// ============================================================================
//                              查询（仅事件循环）
// ============================================================================

// Reservations 返回预留快照
func (s *Server) Reservations() []Reservation {
	out := make([]Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		cp := *r
		out = append(out, cp)
	}
	return out
}

// Circuits 返回电路快照
func (s *Server) Circuits() []CircuitInfo {
	out := make([]CircuitInfo, 0, len(s.circuits))
	for _, c := range s.circuits {
		out = append(out, c.info())
	}
	return out
}

// Stats 返回统计
func (s *Server) Stats() Stats {
	st := s.stats
	st.Reservations = len(s.reservations)
	for _, c := range s.circuits {
		switch c.status {
		case StateActive:
			st.ActiveCircuits++
			st.BytesRelayed += c.counters.total()
		case StateEstablishing:
			st.EstablishingCircuits++
		}
	}
	return st
}

// QueryStats 通过事件循环读取统计（任意 goroutine）
func (s *Server) QueryStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.host.Exec(ctx, func() { st = s.Stats() })
	return st, err
}

// QueryReservations 通过事件循环读取预留（任意 goroutine）
func (s *Server) QueryReservations(ctx context.Context) ([]Reservation, error) {
	var rs []Reservation
	err := s.host.Exec(ctx, func() { rs = s.Reservations() })
	return rs, err
}

// QueryCircuits 通过事件循环读取电路（任意 goroutine）
func (s *Server) QueryCircuits(ctx context.Context) ([]CircuitInfo, error) {
	var cs []CircuitInfo
	err := s.host.Exec(ctx, func() { cs = s.Circuits() })
	return cs, err
}

// ============================================================================
//                              内部
// ============================================================================

func (s *Server) emit(ev any) {
	s.out = append(s.out, swarm.GenerateEvent{Event: ev})
}

// spawn 启动受 Close 等待的后台 goroutine（仅事件循环）
func (s *Server) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
