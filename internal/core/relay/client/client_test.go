package client

import (
	"context"
	"errors"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/identity"
	"github.com/dep2p/go-relay/internal/core/relay/pb"
	"github.com/dep2p/go-relay/internal/core/relay/relaytest"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/core/upgrader"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

var (
	idA     = identity.FromSeed(11)
	idB     = identity.FromSeed(12)
	relayID = relaytest.NodeID(1)
)

// ============================================================================
//                              测试辅助
// ============================================================================

// harness 以测试 goroutine 充当事件循环驱动 Client
type harness struct {
	t       *testing.T
	c       *Client
	h       *relaytest.Host
	relay   *relaytest.Conn
	events  []any
	actions []swarm.ToSwarm
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 5 * time.Second

	h := relaytest.NewHost(idA.ID())
	c := New(cfg, upgrader.NewForIdentity(idA))
	c.Attach(h)
	t.Cleanup(func() { _ = c.Close() })

	relay := relaytest.NewConn(1, idA.ID(), relayID, false)
	h.AddConn(relay)
	return &harness{t: t, c: c, h: h, relay: relay}
}

func relayAddr() ma.Multiaddr {
	addr, err := addrutil.WithPeer(ma.StringCast("/ip4/10.0.0.1/tcp/4001"), relayID)
	if err != nil {
		panic(err)
	}
	return addr
}

func (x *harness) collect() {
	actions, _ := x.c.Poll(64)
	for _, a := range actions {
		if ge, ok := a.(swarm.GenerateEvent); ok {
			x.events = append(x.events, ge.Event)
			continue
		}
		x.actions = append(x.actions, a)
	}
}

func (x *harness) pump(cond func() bool) {
	x.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		x.collect()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			x.t.Fatalf("条件未满足，已收到事件: %#v", x.events)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitEvent[T any](x *harness) T {
	x.t.Helper()
	var out T
	x.pump(func() bool {
		for i, e := range x.events {
			if v, ok := e.(T); ok {
				out = v
				x.events = append(x.events[:i], x.events[i+1:]...)
				return true
			}
		}
		return false
	})
	return out
}

// nextHop 取出客户端打开的 HOP 流并读取请求
func (x *harness) nextHop() (*relaytest.Stream, *pb.HopMessage) {
	x.t.Helper()
	var st *relaytest.Stream
	x.pump(func() bool {
		select {
		case st = <-x.relay.Opened():
			return true
		default:
			return false
		}
	})
	assert.Equal(x.t, protocolids.RelayHop, st.Protocol())
	var req pb.HopMessage
	require.NoError(x.t, pb.ReadMsg(st, &req))
	return st, &req
}

// acceptReserve 模拟中继接受预留
func (x *harness) acceptReserve(ttl time.Duration) {
	x.t.Helper()
	st, req := x.nextHop()
	require.Equal(x.t, pb.HopReserve, req.Type)
	circuit, err := addrutil.CircuitAddr(ma.StringCast("/ip4/10.0.0.1/tcp/4001"), relayID)
	require.NoError(x.t, err)
	require.NoError(x.t, pb.WriteMsg(st, &pb.HopMessage{
		Type:   pb.HopStatus,
		Status: pb.StatusOK,
		Reservation: &pb.Reservation{
			Expire: x.h.Clk.Now().Add(ttl),
			Addrs:  []ma.Multiaddr{circuit},
		},
		Limit: &pb.Limit{Duration: 2 * time.Minute, Data: 1 << 17},
	}))
}

// reserve 完成一次成功的预留
func (x *harness) reserve() Reservation {
	x.t.Helper()
	type result struct {
		r   Reservation
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := x.c.Reserve(context.Background(), relayAddr())
		done <- result{r, err}
	}()
	x.acceptReserve(time.Hour)

	var res result
	x.pump(func() bool {
		select {
		case res = <-done:
			return true
		default:
			return false
		}
	})
	require.NoError(x.t, res.err)
	waitEvent[ReservationReqAccepted](x)
	return res.r
}

// ============================================================================
//                              预留
// ============================================================================

// TestReserve_Success 预留成功后发布电路地址
func TestReserve_Success(t *testing.T) {
	x := newHarness(t)
	r := x.reserve()

	assert.Equal(t, relayID, r.Relay)
	assert.Equal(t, x.h.Clk.Now().Add(time.Hour).Unix(), r.Expiry.Unix())
	require.Len(t, r.Addrs, 1)
	require.NotNil(t, r.Limit)
	assert.Equal(t, uint64(1<<17), r.Limit.Data)

	var published []ma.Multiaddr
	for _, a := range x.actions {
		if ea, ok := a.(swarm.ExternalAddr); ok {
			published = append(published, ea.Addr)
		}
	}
	require.Len(t, published, 1)
	assert.True(t, published[0].Equal(r.Addrs[0]))
	assert.True(t, x.c.HasReservation(relayID))
	assert.Len(t, x.c.Reservations(), 1)
}

// TestReserve_Refresh 剩余 1/4 有效期时续期
func TestReserve_Refresh(t *testing.T) {
	x := newHarness(t)
	x.reserve()
	x.actions = nil

	x.h.Clk.Add(30 * time.Minute)
	x.c.Tick(x.h.Clk.Now())
	select {
	case <-x.relay.Opened():
		t.Fatal("未到续期时间不应发起预留")
	case <-time.After(50 * time.Millisecond):
	}

	x.h.Clk.Add(16 * time.Minute)
	x.c.Tick(x.h.Clk.Now())
	x.acceptReserve(time.Hour)

	ev := waitEvent[ReservationReqAccepted](x)
	assert.True(t, ev.Renewed)
	for _, a := range x.actions {
		_, isAddr := a.(swarm.ExternalAddr)
		assert.False(t, isAddr, "续期不应重复发布相同地址")
	}
}

// TestReserve_RefusedBackoff 被拒后按退避重试
func TestReserve_RefusedBackoff(t *testing.T) {
	x := newHarness(t)

	done := make(chan error, 1)
	go func() {
		_, err := x.c.Reserve(context.Background(), relayAddr())
		done <- err
	}()
	st, _ := x.nextHop()
	require.NoError(t, pb.WriteMsg(st, &pb.HopMessage{Type: pb.HopStatus, Status: pb.StatusReservationRefused}))

	ev := waitEvent[ReservationReqFailed](x)
	assert.False(t, ev.Renewal)
	assert.ErrorIs(t, ev.Err, ErrReservationRefused)
	assert.ErrorIs(t, <-done, ErrReservationRefused)
	assert.False(t, x.c.HasReservation(relayID))

	x.h.Clk.Add(retryBase - time.Second)
	x.c.Tick(x.h.Clk.Now())
	select {
	case <-x.relay.Opened():
		t.Fatal("退避期间不应重试")
	case <-time.After(50 * time.Millisecond):
	}

	x.h.Clk.Add(time.Second)
	x.c.Tick(x.h.Clk.Now())
	x.acceptReserve(time.Hour)
	waitEvent[ReservationReqAccepted](x)
}

// TestReserve_InvalidResponse 中继应答缺少预留或已过期
func TestReserve_InvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *pb.HopMessage
	}{
		{"缺少预留", &pb.HopMessage{Type: pb.HopStatus, Status: pb.StatusOK}},
		{"错误类型", &pb.HopMessage{Type: pb.HopConnect, Peer: &pb.Peer{ID: relayID}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newHarness(t)
			done := make(chan error, 1)
			go func() {
				_, err := x.c.Reserve(context.Background(), relayAddr())
				done <- err
			}()
			st, _ := x.nextHop()
			require.NoError(t, pb.WriteMsg(st, tt.resp))
			waitEvent[ReservationReqFailed](x)
			assert.Error(t, <-done)
		})
	}
}

// TestReserve_RelayedConnection 不通过中继连接预留
func TestReserve_RelayedConnection(t *testing.T) {
	x := newHarness(t)
	x.h.RemoveConn(x.relay)
	x.h.AddConn(relaytest.NewConn(2, idA.ID(), relayID, true))

	done := make(chan error, 1)
	go func() {
		_, err := x.c.Reserve(context.Background(), relayAddr())
		done <- err
	}()
	ev := waitEvent[ReservationReqFailed](x)
	assert.ErrorIs(t, ev.Err, ErrRelayedRelay)
	assert.ErrorIs(t, <-done, ErrRelayedRelay)
}

// TestReserve_ConnectionClosed 中继连接断开后预留失效
func TestReserve_ConnectionClosed(t *testing.T) {
	x := newHarness(t)
	x.reserve()

	x.c.OnConnectionClosed(x.relay)
	ev := waitEvent[ReservationClosed](x)
	assert.Equal(t, relayID, ev.Relay)
	assert.False(t, x.c.HasReservation(relayID))
	assert.Empty(t, x.c.Reservations())
}

// TestReserve_Expired 续期一直失败时预留到期
func TestReserve_Expired(t *testing.T) {
	x := newHarness(t)
	x.reserve()

	x.h.RemoveConn(x.relay)
	x.h.Clk.Add(time.Hour)
	x.c.Tick(x.h.Clk.Now())

	ev := waitEvent[ReservationExpired](x)
	assert.Equal(t, relayID, ev.Relay)
	waitEvent[ReservationReqFailed](x)
	assert.False(t, x.c.HasReservation(relayID))
}

// ============================================================================
//                              STOP
// ============================================================================

// openStop 模拟中继打开 STOP 流
func (x *harness) openStop() *relaytest.Stream {
	local, remote := relaytest.Pipe(x.relay, nil, protocolids.RelayStop)
	x.t.Cleanup(func() { _ = remote.Close() })
	x.c.HandleInboundStream(local)
	return remote
}

// TestStop_Denied 没有预留或请求无效时拒绝
func TestStop_Denied(t *testing.T) {
	tests := []struct {
		name   string
		req    *pb.StopMessage
		status pb.Status
	}{
		{"没有预留", &pb.StopMessage{Type: pb.StopConnect, Peer: &pb.Peer{ID: idB.ID()}}, pb.StatusPermissionDenied},
		{"缺少对端", &pb.StopMessage{Type: pb.StopConnect}, pb.StatusMalformedMessage},
		{"错误类型", &pb.StopMessage{Type: pb.StopStatus, Status: pb.StatusOK}, pb.StatusUnexpectedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newHarness(t)
			remote := x.openStop()
			require.NoError(t, pb.WriteMsg(remote, tt.req))

			var resp pb.StopMessage
			require.NoError(t, pb.ReadMsg(remote, &resp))
			assert.Equal(t, pb.StopStatus, resp.Type)
			assert.Equal(t, tt.status, resp.Status)

			ev := waitEvent[InboundCircuitReqDenied](x)
			assert.Equal(t, relayID, ev.Relay)
			assert.Equal(t, tt.status, ev.Status)
		})
	}
}

// TestStop_Malformed 无法解码的请求得到 MALFORMED_MESSAGE
func TestStop_Malformed(t *testing.T) {
	x := newHarness(t)
	remote := x.openStop()
	_, err := remote.Write([]byte{0x01, 0x80})
	require.NoError(t, err)

	var resp pb.StopMessage
	require.NoError(t, pb.ReadMsg(remote, &resp))
	assert.Equal(t, pb.StatusMalformedMessage, resp.Status)
	waitEvent[InboundCircuitReqDenied](x)
}

// TestStop_Accept 持有预留时接受电路并升级为连接
func TestStop_Accept(t *testing.T) {
	x := newHarness(t)
	x.reserve()
	x.actions = nil

	remote := x.openStop()
	require.NoError(t, pb.WriteMsg(remote, &pb.StopMessage{
		Type:  pb.StopConnect,
		Peer:  &pb.Peer{ID: idB.ID()},
		Limit: &pb.Limit{Duration: time.Minute},
	}))
	var resp pb.StopMessage
	require.NoError(t, pb.ReadMsg(remote, &resp))
	require.Equal(t, pb.StatusOK, resp.Status)

	// B 端在电路流上完成出站升级
	upgraded := make(chan *upgrader.Conn, 1)
	go func() {
		raddr := ma.StringCast("/p2p-circuit")
		c, _ := upgrader.NewForIdentity(idB).Upgrade(context.Background(),
			newCircuitConn(remote, raddr, raddr), pkgif.DirOutbound, idA.ID())
		upgraded <- c
	}()

	ev := waitEvent[InboundCircuitEstablished](x)
	assert.Equal(t, idB.ID(), ev.Src)
	assert.Equal(t, relayID, ev.Relay)
	require.NotNil(t, ev.Limit)
	assert.Equal(t, time.Minute, ev.Limit.Duration)
	bConn := <-upgraded
	require.NotNil(t, bConn)
	t.Cleanup(func() { _ = bConn.Close() })
	assert.Equal(t, idA.ID(), bConn.RemotePeer())

	var conn pkgif.Connection
	for _, a := range x.actions {
		if ac, ok := a.(swarm.AddConnection); ok {
			conn = ac.Conn
		}
	}
	require.NotNil(t, conn)
	t.Cleanup(func() { _ = conn.Close() })
	assert.Equal(t, idB.ID(), conn.RemotePeer())
	assert.True(t, conn.IsRelayed())

	want, err := circuitRemoteAddr(x.relay.RemoteMultiaddr(), relayID, idB.ID())
	require.NoError(t, err)
	assert.True(t, want.Equal(conn.RemoteMultiaddr()), "got %s", conn.RemoteMultiaddr())
}

// ============================================================================
//                              Transport
// ============================================================================

func targetAddr(t *testing.T, target types.NodeID) ma.Multiaddr {
	t.Helper()
	addr, err := addrutil.CircuitAddr(ma.StringCast("/ip4/10.0.0.1/tcp/4001"), relayID)
	require.NoError(t, err)
	addr, err = addrutil.WithPeer(addr, target)
	require.NoError(t, err)
	return addr
}

type dialResult struct {
	conn pkgif.Connection
	err  error
}

func (x *harness) dial(target types.NodeID) <-chan dialResult {
	ch := make(chan dialResult, 1)
	addr := targetAddr(x.t, target)
	go func() {
		c, err := x.c.Transport().Dial(context.Background(), addr, target)
		ch <- dialResult{c, err}
	}()
	return ch
}

// TestTransport_Dial 经中继拨号并升级
func TestTransport_Dial(t *testing.T) {
	x := newHarness(t)
	res := x.dial(idB.ID())

	st, req := x.nextHop()
	require.Equal(t, pb.HopConnect, req.Type)
	require.NotNil(t, req.Peer)
	assert.Equal(t, idB.ID(), req.Peer.ID)
	require.NoError(t, pb.WriteMsg(st, &pb.HopMessage{
		Type:   pb.HopStatus,
		Status: pb.StatusOK,
		Limit:  &pb.Limit{Duration: 2 * time.Minute, Data: 1 << 17},
	}))

	// B 端作为入站方升级
	upgraded := make(chan *upgrader.Conn, 1)
	go func() {
		raddr := ma.StringCast("/p2p-circuit")
		c, _ := upgrader.NewForIdentity(idB).Upgrade(context.Background(),
			newCircuitConn(st, raddr, raddr), pkgif.DirInbound, types.EmptyNodeID)
		upgraded <- c
	}()

	var r dialResult
	x.pump(func() bool {
		select {
		case r = <-res:
			return true
		default:
			return false
		}
	})
	require.NoError(t, r.err)
	t.Cleanup(func() { _ = r.conn.Close() })
	bConn := <-upgraded
	require.NotNil(t, bConn)
	t.Cleanup(func() { _ = bConn.Close() })
	assert.Equal(t, idA.ID(), bConn.RemotePeer())
	assert.Equal(t, idB.ID(), r.conn.RemotePeer())
	assert.True(t, r.conn.IsRelayed())
	assert.Equal(t, pkgif.DirOutbound, r.conn.Stat().Direction)

	ev := waitEvent[OutboundCircuitEstablished](x)
	assert.Equal(t, idB.ID(), ev.Dst)
	require.NotNil(t, ev.Limit)
	assert.Equal(t, uint64(1<<17), ev.Limit.Data)
}

// TestTransport_DialDenied 中继拒绝时返回对应错误
func TestTransport_DialDenied(t *testing.T) {
	tests := []struct {
		status pb.Status
		err    error
	}{
		{pb.StatusNoReservation, ErrNoReservation},
		{pb.StatusPermissionDenied, ErrPermissionDenied},
		{pb.StatusResourceLimitExceeded, ErrResourceLimitExceeded},
		{pb.StatusConnectionFailed, ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			x := newHarness(t)
			res := x.dial(idB.ID())
			st, _ := x.nextHop()
			require.NoError(t, pb.WriteMsg(st, &pb.HopMessage{Type: pb.HopStatus, Status: tt.status}))

			ev := waitEvent[OutboundCircuitReqFailed](x)
			assert.ErrorIs(t, ev.Err, tt.err)
			r := <-res
			assert.ErrorIs(t, r.err, tt.err)
			assert.Nil(t, r.conn)
		})
	}
}

// TestTransport_DialValidation 地址与目标校验
func TestTransport_DialValidation(t *testing.T) {
	x := newHarness(t)
	tr := x.c.Transport()
	ctx := context.Background()

	_, err := tr.Dial(ctx, ma.StringCast("/ip4/10.0.0.1/tcp/4001"), idB.ID())
	assert.ErrorIs(t, err, addrutil.ErrNotRelayAddr)

	_, err = tr.Dial(ctx, targetAddr(t, idB.ID()), relaytest.NodeID(9))
	assert.ErrorIs(t, err, addrutil.ErrPeerIDMismatch)

	noTarget, err := addrutil.CircuitAddr(ma.StringCast("/ip4/10.0.0.1/tcp/4001"), relayID)
	require.NoError(t, err)
	_, err = tr.Dial(ctx, noTarget, types.EmptyNodeID)
	assert.ErrorIs(t, err, ErrNoTarget)
}

// TestTransport_Capabilities 传输能力
func TestTransport_Capabilities(t *testing.T) {
	x := newHarness(t)
	tr := x.c.Transport()

	assert.True(t, tr.CanDial(targetAddr(t, idB.ID())))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/10.0.0.1/tcp/4001")))
	assert.Equal(t, []int{ma.P_CIRCUIT}, tr.Protocols())

	_, err := tr.Listen(ma.StringCast("/p2p-circuit"))
	assert.ErrorIs(t, err, ErrListenUnsupported)

	require.NoError(t, x.c.Close())
	assert.False(t, tr.CanDial(targetAddr(t, idB.ID())))
	_, err = tr.Dial(context.Background(), targetAddr(t, idB.ID()), idB.ID())
	assert.ErrorIs(t, err, ErrClientClosed)
}

// ============================================================================
//                              配置
// ============================================================================

func TestBackoff(t *testing.T) {
	assert.Equal(t, retryBase, backoff(0))
	assert.Equal(t, retryBase, backoff(1))
	assert.Equal(t, 2*retryBase, backoff(2))
	assert.Equal(t, 4*retryBase, backoff(3))
	assert.Equal(t, retryMax, backoff(20))
}

func TestConfigFromUnified(t *testing.T) {
	cfg, err := ConfigFromUnified(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	uc := config.DefaultConfig()
	uc.Relay.Client.Relays = []string{relayAddr().String()}
	uc.Relay.Client.ConnectTimeout = config.Duration(3 * time.Second)
	cfg, err = ConfigFromUnified(uc)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	require.Len(t, cfg.Relays, 1)
	assert.True(t, cfg.Relays[0].Equal(relayAddr()))

	uc.Relay.Client.Relays = []string{"/ip4/10.0.0.1/tcp/4001"}
	_, err = ConfigFromUnified(uc)
	assert.True(t, errors.Is(err, addrutil.ErrMissingPeerID))
}

// TestPoll_ReservesConfiguredRelays 首次 Poll 向配置的中继预留
func TestPoll_ReservesConfiguredRelays(t *testing.T) {
	x := newHarness(t)
	x.c.cfg.Relays = []ma.Multiaddr{relayAddr()}
	x.acceptReserve(time.Hour)
	ev := waitEvent[ReservationReqAccepted](x)
	assert.False(t, ev.Renewed)
	assert.Equal(t, relayID, ev.Relay)
}
