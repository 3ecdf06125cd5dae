package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

// ============================================================================
//                              电路请求
// ============================================================================

func (s *Server) handleConnect(st pkgif.Stream, msg *pb.HopMessage) {
	conn := st.Conn()
	src := conn.RemotePeer()

	if msg.Peer == nil {
		err := fmt.Errorf("%w: connect without peer", pb.ErrMalformedMessage)
		s.emit(ProtocolViolation{Peer: src, Err: err})
		s.respond(st, pb.StatusMalformedMessage, true)
		return
	}

	dst := msg.Peer.ID
	d := s.HandleCircuitRequest(src, conn.ID(), dst, st)
	if !d.Accepted {
		s.emit(CircuitReqDenied{Src: src, Dst: dst, Reason: d.Reason})
		s.respond(st, d.Reason.Status(), false)
	}
}

// HandleCircuitRequest 按策略处理电路请求（仅事件循环）
//
// 接受时登记 Establishing 电路，并在后台向目标打开 STOP 流。
// 拒绝时电路表不变。
func (s *Server) HandleCircuitRequest(src types.NodeID, srcConnID types.ConnID, dst types.NodeID, srcStream pkgif.Stream) Decision {
	now := s.clock.Now()
	deny := func(r DenyReason) Decision {
		s.stats.CircuitsDenied++
		log.Debug("拒绝电路",
			"src", src.ShortString(),
			"dst", dst.ShortString(),
			"reason", r)
		return denied(r)
	}

	if src == dst || !s.policy.Permits(src) {
		return deny(ReasonPermissionDenied)
	}
	srcConn := s.host.ConnectionByID(srcConnID)
	if srcConn == nil || srcConn.IsRelayed() {
		return deny(ReasonPermissionDenied)
	}

	r, ok := s.reservations[dst]
	if !ok || r.Status != ReservationActive {
		return deny(ReasonNoReservation)
	}
	if s.policy.MaxCircuits > 0 && len(s.circuits) >= s.policy.MaxCircuits {
		return deny(ReasonResourceLimitExceeded)
	}
	if per := s.policy.MaxCircuitsPerPeer; per > 0 && (s.circuitsOf(src) >= per || s.circuitsOf(dst) >= per) {
		return deny(ReasonResourceLimitExceeded)
	}

	dstConn := s.host.ConnectionByID(r.ConnID)
	if dstConn == nil || dstConn.IsClosed() {
		return deny(ReasonDestinationUnreachable)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.policy.CircuitEstablishTimeout)
	c := &circuit{
		id:        uuid.New(),
		src:       src,
		dst:       dst,
		srcConn:   srcConnID,
		dstConn:   dstConn.ID(),
		status:    StateEstablishing,
		created:   now,
		deadline:  now.Add(s.policy.CircuitEstablishTimeout),
		srcStream: srcStream,
		cancel:    cancel,
		counters:  &counters{},
	}
	c.counters.touch(now)
	s.circuits[c.id] = c

	log.Debug("电路建立中",
		"id", c.id,
		"src", src.ShortString(),
		"dst", dst.ShortString())

	limit := s.policy.limit()
	id := c.id
	s.spawn(func() { s.openStop(ctx, id, src, dstConn, limit) })
	return Decision{Accepted: true, CircuitID: c.id}
}

func (s *Server) circuitsOf(peer types.NodeID) int {
	n := 0
	for _, c := range s.circuits {
		if c.src == peer || c.dst == peer {
			n++
		}
	}
	return n
}

// openStop 向目标打开 STOP 流并等待应答（后台 goroutine）
//
// ctx 取消时重置流，阻塞中的读写立即返回。
func (s *Server) openStop(ctx context.Context, id uuid.UUID, src types.NodeID, dstConn pkgif.Connection, limit *pb.Limit) {
	fail := func(st pkgif.Stream, err error) {
		if st != nil {
			_ = st.Reset()
		}
		s.inbox.Post(msgStopResult{id: id, err: err})
	}

	st, err := dstConn.OpenStream(ctx, protocolids.RelayStop)
	if err != nil {
		fail(nil, err)
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = st.Reset() })
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(deadline)
	}

	req := &pb.StopMessage{Type: pb.StopConnect, Peer: &pb.Peer{ID: src}, Limit: limit}
	if err := pb.WriteMsg(st, req); err != nil {
		stop()
		fail(st, err)
		return
	}
	var resp pb.StopMessage
	if err := pb.ReadMsg(st, &resp); err != nil {
		stop()
		fail(st, err)
		return
	}
	if !stop() {
		fail(st, ctx.Err())
		return
	}
	if resp.Type != pb.StopStatus {
		fail(st, fmt.Errorf("%w: %s", pb.ErrUnexpectedMessage, resp.Type))
		return
	}
	_ = st.SetDeadline(time.Time{})
	s.inbox.Post(msgStopResult{id: id, stream: st, status: resp.Status})
}

func (s *Server) handleStopResult(m msgStopResult) {
	c, ok := s.circuits[m.id]
	if !ok || c.status != StateEstablishing {
		m.discard()
		return
	}

	if m.err != nil || m.status != pb.StatusOK {
		log.Debug("目标拒绝电路",
			"id", c.id,
			"dst", c.dst.ShortString(),
			"status", m.status,
			"error", m.err)
		if m.stream != nil {
			_ = m.stream.Close()
		}
		c.status = StateDenied
		s.removeCircuit(c)
		s.stats.CircuitsDenied++
		s.emit(CircuitReqDenied{Src: c.src, Dst: c.dst, Reason: ReasonConnectionFailed})
		s.respond(c.srcStream, pb.StatusConnectionFailed, false)
		return
	}

	now := s.clock.Now()
	c.dstStream = m.stream
	c.status = StateActive
	c.established = now
	if s.policy.MaxCircuitDuration > 0 {
		c.deadline = now.Add(s.policy.MaxCircuitDuration)
	}
	c.counters.touch(now)
	s.stats.CircuitsEstablished++

	log.Info("电路已建立",
		"id", c.id,
		"src", c.src.ShortString(),
		"dst", c.dst.ShortString())
	s.emit(CircuitEstablished{ID: c.id, Src: c.src, Dst: c.dst})

	id, srcStream, dstStream, cnt := c.id, c.srcStream, c.dstStream, c.counters
	limit := s.policy.limit()
	s.spawn(func() { s.relay(id, srcStream, dstStream, cnt, limit) })
}

// ============================================================================
//                              转发
// ============================================================================

// relay 向发起方确认电路后双向转发（后台 goroutine）
func (s *Server) relay(id uuid.UUID, src, dst pkgif.Stream, cnt *counters, limit *pb.Limit) {
	_ = src.SetWriteDeadline(time.Now().Add(s.policy.CircuitEstablishTimeout))
	if err := pb.WriteMsg(src, &pb.HopMessage{Type: pb.HopStatus, Status: pb.StatusOK, Limit: limit}); err != nil {
		s.inbox.Post(msgCircuitEnd{id: id, reason: CloseSrc})
		return
	}
	_ = src.SetWriteDeadline(time.Time{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.forward(id, dst, src, &cnt.dstToSrc, cnt, CloseDst)
	}()
	s.forward(id, src, dst, &cnt.srcToDst, cnt, CloseSrc)
}

// forward 单向转发 from → to
//
// 读端结束以 readSide 报告，写端失败以另一侧报告。超出配额时报告
// CloseDataLimit，超出的数据不会写出。
func (s *Server) forward(id uuid.UUID, from, to pkgif.Stream, n *atomic.Int64, cnt *counters, readSide CloseReason) {
	writeSide := CloseDst
	if readSide == CloseDst {
		writeSide = CloseSrc
	}
	quota := s.policy.MaxCircuitBytes
	buf := make([]byte, s.policy.BufferSize)

	for {
		k, rerr := from.Read(buf)
		if k > 0 {
			if quota > 0 && n.Load()+int64(k) > quota {
				s.inbox.Post(msgCircuitEnd{id: id, reason: CloseDataLimit})
				return
			}
			n.Add(int64(k))
			cnt.touch(s.clock.Now())
			if _, werr := to.Write(buf[:k]); werr != nil {
				s.inbox.Post(msgCircuitEnd{id: id, reason: writeSide})
				return
			}
		}
		if rerr != nil {
			s.inbox.Post(msgCircuitEnd{id: id, reason: readSide})
			return
		}
	}
}

// ============================================================================
//                              关闭与超时
// ============================================================================

// closeCircuit 关闭电路并重置两侧流（仅事件循环）
//
// 两个转发 goroutine 各自报告结束，第二次报告时电路已移除而被忽略。
func (s *Server) closeCircuit(c *circuit, reason CloseReason) {
	now := s.clock.Now()
	wasActive := c.status == StateActive
	c.status = StateClosed
	s.removeCircuit(c)
	s.resetStreams(c)

	bytes := c.counters.total()
	s.stats.BytesRelayed += bytes
	var dur time.Duration
	if wasActive {
		dur = now.Sub(c.established)
	}

	log.Debug("电路已关闭",
		"id", c.id,
		"reason", reason,
		"bytes", bytes,
		"duration", dur)
	s.emit(CircuitClosed{
		ID:       c.id,
		Src:      c.src,
		Dst:      c.dst,
		Reason:   reason,
		Bytes:    bytes,
		Duration: dur,
	})
}

// timeoutCircuit 超时关闭电路（仅事件循环）
func (s *Server) timeoutCircuit(c *circuit, phase TimeoutPhase) {
	c.status = StateTimedOut
	s.removeCircuit(c)
	s.resetStreams(c)

	bytes := c.counters.total()
	s.stats.BytesRelayed += bytes

	log.Debug("电路超时", "id", c.id, "phase", phase, "bytes", bytes)
	s.emit(CircuitTimedOut{ID: c.id, Src: c.src, Dst: c.dst, Phase: phase, Bytes: bytes})
}

func (s *Server) removeCircuit(c *circuit) {
	delete(s.circuits, c.id)
	c.cancel()
}

// resetStreams 在后台重置电路两侧的流
func (s *Server) resetStreams(c *circuit) {
	src, dst := c.srcStream, c.dstStream
	c.srcStream, c.dstStream = nil, nil
	s.spawn(func() {
		if src != nil {
			_ = src.Reset()
		}
		if dst != nil {
			_ = dst.Reset()
		}
	})
}
