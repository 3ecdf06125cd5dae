package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/core/upgrader"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("relay.client")

// Name 行为名称
const Name = "relay-client"

// 确保实现接口
var _ swarm.NetworkBehaviour = (*Client)(nil)

// Reservation 在中继上持有的预留
type Reservation struct {
	Relay  types.NodeID
	Expiry time.Time
	// Addrs 中继通告的电路地址，对外发布后其它节点可经此拨入
	Addrs []ma.Multiaddr
	Limit *pb.Limit
}

// relayEntry 一个需要保持预留的中继（仅事件循环）
type relayEntry struct {
	id   types.NodeID
	addr ma.Multiaddr

	active   bool
	inflight bool
	connID   types.ConnID
	resv     Reservation

	refreshAt time.Time
	retryAt   time.Time
	failures  int
	waiters   []chan reserveReply
}

// Client 中继客户端
type Client struct {
	cfg       Config
	upgrader  *upgrader.Upgrader
	transport *Transport

	host  swarm.Host
	clock clock.Clock

	// 以下字段仅由事件循环访问
	relays  map[types.NodeID]*relayEntry
	out     []swarm.ToSwarm
	started bool
	closed  bool

	inbox   *swarm.Mailbox[clientMsg]
	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New 创建中继客户端
//
// u 用于升级经由电路的连接，必须与 Swarm 的直连传输使用同一身份。
func New(cfg Config, u *upgrader.Upgrader) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		upgrader: u,
		clock:    clock.New(),
		relays:   make(map[types.NodeID]*relayEntry),
		inbox:    swarm.NewMailbox[clientMsg](),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.transport = &Transport{c: c}
	return c
}

// Transport 返回经由中继拨号的传输
func (c *Client) Transport() *Transport {
	return c.transport
}

// ============================================================================
//                              NetworkBehaviour
// ============================================================================

// Name 返回行为名称
func (c *Client) Name() string { return Name }

// Protocols 返回处理的入站协议
func (c *Client) Protocols() []types.ProtocolID {
	return []types.ProtocolID{protocolids.RelayStop}
}

// Attach 绑定 Swarm
func (c *Client) Attach(h swarm.Host) {
	c.host = h
	c.clock = h.Clock()
	c.inbox.SetWaker(h.Wake)
}

// OnConnectionEstablished 无需处理
func (c *Client) OnConnectionEstablished(pkgif.Connection) {}

// OnConnectionClosed 与中继的连接断开时预留失效，稍后重新预留
func (c *Client) OnConnectionClosed(conn pkgif.Connection) {
	e, ok := c.relays[conn.RemotePeer()]
	if !ok || !e.active || e.connID != conn.ID() {
		return
	}
	e.active = false
	e.resv.Addrs = nil
	e.retryAt = c.clock.Now().Add(retryBase)
	log.Info("中继连接断开，预留失效", "relay", e.id.ShortString())
	c.emit(ReservationClosed{Relay: e.id})
}

// HandleInboundStream 处理中继发来的 STOP 流
func (c *Client) HandleInboundStream(st pkgif.Stream) {
	if c.closed {
		_ = st.Reset()
		return
	}
	relay := st.Conn().RemotePeer()
	e, ok := c.relays[relay]
	reserved := ok && e.active && c.clock.Now().Before(e.resv.Expiry)
	relayAddr := st.Conn().RemoteMultiaddr()
	c.spawn(func() { c.handleStop(st, relay, relayAddr, reserved) })
}

// Tick 续期与重试
//
// 剩余 1/4 有效期时续期；续期失败则按退避重试，直到到期。
func (c *Client) Tick(now time.Time) {
	for _, e := range c.relays {
		if e.inflight {
			continue
		}
		switch {
		case e.active && !now.Before(e.resv.Expiry):
			e.active = false
			e.resv.Addrs = nil
			log.Info("预留已过期", "relay", e.id.ShortString())
			c.emit(ReservationExpired{Relay: e.id})
			c.startReserve(e, nil)
		case e.active && !now.Before(e.refreshAt):
			c.startReserve(e, nil)
		case !e.active && !e.retryAt.IsZero() && !now.Before(e.retryAt):
			c.startReserve(e, nil)
		}
	}
}

// Poll 处理后台结果；首次调用时向配置的中继发起预留
func (c *Client) Poll(budget int) ([]swarm.ToSwarm, bool) {
	if !c.started {
		c.started = true
		for _, addr := range c.cfg.Relays {
			c.handleReserve(msgReserve{addr: addr, relay: addrutil.PeerFromAddr(addr)})
		}
	}

	msgs, more := c.inbox.Drain(budget)
	for _, m := range msgs {
		switch m := m.(type) {
		case msgReserve:
			c.handleReserve(m)
		case msgReserveResult:
			c.handleReserveResult(m)
		case msgInboundCircuit:
			c.handleInboundCircuit(m)
		case msgInboundDenied:
			c.emit(InboundCircuitReqDenied{Src: m.src, Relay: m.relay, Status: m.status})
		case msgOutbound:
			c.handleOutbound(m)
		}
	}

	out := c.out
	c.out = nil
	return out, more
}

// Close 停止后台任务并关闭尚未交给 Swarm 的连接
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.closing.Store(true)
	c.cancel()
	close(c.done)
	c.wg.Wait()

	leftovers, _ := c.inbox.Drain(0)
	for _, m := range leftovers {
		m.discard()
	}
	return nil
}

// ============================================================================
//                              预留
// ============================================================================

type reserveReply struct {
	resv Reservation
	err  error
}

// Reserve 在中继上预留并等待结果（任意 goroutine，不得在事件循环中调用）
//
// 预留成功后由 Client 自动续期；连接断开或续期失败时按退避重试。
func (c *Client) Reserve(ctx context.Context, relayAddr ma.Multiaddr) (Reservation, error) {
	if c.closing.Load() {
		return Reservation{}, ErrClientClosed
	}
	_, relay, err := addrutil.SplitPeer(relayAddr)
	if err != nil {
		return Reservation{}, err
	}
	if relay.IsEmpty() {
		return Reservation{}, addrutil.ErrMissingPeerID
	}

	reply := make(chan reserveReply, 1)
	c.inbox.Post(msgReserve{addr: relayAddr, relay: relay, reply: reply})
	select {
	case r := <-reply:
		return r.resv, r.err
	case <-ctx.Done():
		return Reservation{}, ctx.Err()
	case <-c.done:
		return Reservation{}, ErrClientClosed
	}
}

func (c *Client) handleReserve(m msgReserve) {
	if m.relay.IsEmpty() {
		m.respond(reserveReply{err: addrutil.ErrMissingPeerID})
		return
	}
	e, ok := c.relays[m.relay]
	if !ok {
		e = &relayEntry{id: m.relay}
		c.relays[m.relay] = e
	}
	e.addr = m.addr
	if e.inflight {
		if m.reply != nil {
			e.waiters = append(e.waiters, m.reply)
		}
		return
	}
	c.startReserve(e, m.reply)
}

// startReserve 在后台发起一次预留（仅事件循环）
func (c *Client) startReserve(e *relayEntry, reply chan reserveReply) {
	e.inflight = true
	if reply != nil {
		e.waiters = append(e.waiters, reply)
	}
	addr, relay, renewal := e.addr, e.id, e.active
	log.Debug("发起预留", "relay", relay.ShortString(), "renewal", renewal)
	c.spawn(func() {
		resv, connID, err := c.reserve(addr, relay)
		c.inbox.Post(msgReserveResult{relay: relay, connID: connID, resv: resv, renewal: renewal, err: err})
	})
}

// reserve 执行一次 RESERVE 交换（后台 goroutine）
func (c *Client) reserve(addr ma.Multiaddr, relay types.NodeID) (Reservation, types.ConnID, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.host.Connect(ctx, addr)
	if err != nil {
		return Reservation{}, 0, err
	}
	if conn.IsRelayed() {
		return Reservation{}, 0, ErrRelayedRelay
	}

	st, err := conn.OpenStream(ctx, protocolids.RelayHop)
	if err != nil {
		return Reservation{}, 0, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(dl)
	}

	req := &pb.HopMessage{Type: pb.HopReserve}
	if c.cfg.ReservationDuration > 0 {
		req.Limit = &pb.Limit{Duration: c.cfg.ReservationDuration}
	}
	resp, err := roundTrip(st, req)
	if err != nil {
		_ = st.Reset()
		return Reservation{}, 0, err
	}
	_ = st.Close()

	if err := statusError(resp.Status); err != nil {
		return Reservation{}, 0, err
	}
	if resp.Reservation == nil || resp.Reservation.Expire.IsZero() {
		return Reservation{}, 0, ErrInvalidReservation
	}
	return Reservation{
		Relay:  relay,
		Expiry: resp.Reservation.Expire,
		Addrs:  resp.Reservation.Addrs,
		Limit:  resp.Limit,
	}, conn.ID(), nil
}

// roundTrip 发送 HOP 请求并读取 STATUS 应答
func roundTrip(st pkgif.Stream, req *pb.HopMessage) (*pb.HopMessage, error) {
	if err := pb.WriteMsg(st, req); err != nil {
		return nil, err
	}
	var resp pb.HopMessage
	if err := pb.ReadMsg(st, &resp); err != nil {
		return nil, err
	}
	if resp.Type != pb.HopStatus {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, resp.Type)
	}
	return &resp, nil
}

func (c *Client) handleReserveResult(m msgReserveResult) {
	e, ok := c.relays[m.relay]
	if !ok {
		return
	}
	e.inflight = false
	waiters := e.waiters
	e.waiters = nil
	respond := func(r reserveReply) {
		for _, w := range waiters {
			w <- r
		}
	}

	now := c.clock.Now()
	err := m.err
	if err == nil && !m.resv.Expiry.After(now) {
		err = fmt.Errorf("%w: expiry %s in the past", ErrInvalidReservation, m.resv.Expiry.Format(time.RFC3339))
	}
	if err != nil {
		e.failures++
		next := now.Add(backoff(e.failures))
		if e.active {
			e.refreshAt = next
		} else {
			e.retryAt = next
		}
		log.Warn("预留失败", "relay", e.id.ShortString(), "renewal", m.renewal, "failures", e.failures, "error", err)
		c.emit(ReservationReqFailed{Relay: e.id, Renewal: m.renewal, Err: err})
		respond(reserveReply{err: err})
		return
	}

	renewed := e.active
	prev := e.resv.Addrs
	e.active = true
	e.connID = m.connID
	e.resv = m.resv
	e.refreshAt = now.Add(m.resv.Expiry.Sub(now) * 3 / 4)
	e.retryAt = time.Time{}
	e.failures = 0

	for _, a := range m.resv.Addrs {
		if !containsAddr(prev, a) {
			c.out = append(c.out, swarm.ExternalAddr{Addr: a})
		}
	}

	log.Info("预留成功",
		"relay", e.id.ShortString(),
		"renewed", renewed,
		"expiry", m.resv.Expiry.Format(time.RFC3339),
		"addrs", len(m.resv.Addrs))
	c.emit(ReservationReqAccepted{
		Relay:   e.id,
		Renewed: renewed,
		Expiry:  m.resv.Expiry,
		Addrs:   m.resv.Addrs,
		Limit:   m.resv.Limit,
	})
	respond(reserveReply{resv: m.resv})
}

// ============================================================================
//                              查询（仅事件循环）
// ============================================================================

// Reservations 返回有效预留
func (c *Client) Reservations() []Reservation {
	out := make([]Reservation, 0, len(c.relays))
	for _, e := range c.relays {
		if e.active {
			out = append(out, e.resv)
		}
	}
	return out
}

// HasReservation 是否持有该中继的有效预留
func (c *Client) HasReservation(relay types.NodeID) bool {
	e, ok := c.relays[relay]
	return ok && e.active && c.clock.Now().Before(e.resv.Expiry)
}

// QueryReservations 通过事件循环读取有效预留（任意 goroutine）
func (c *Client) QueryReservations(ctx context.Context) ([]Reservation, error) {
	if c.host == nil {
		return nil, ErrNotAttached
	}
	var rs []Reservation
	err := c.host.Exec(ctx, func() { rs = c.Reservations() })
	return rs, err
}

// ============================================================================
//                              内部
// ============================================================================

func (c *Client) emit(ev any) {
	c.out = append(c.out, swarm.GenerateEvent{Event: ev})
}

func (c *Client) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func containsAddr(list []ma.Multiaddr, a ma.Multiaddr) bool {
	for _, x := range list {
		if x.Equal(a) {
			return true
		}
	}
	return false
}
