package ping

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/swarm"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

// Name 行为名称
const Name = "ping"

// 确保实现接口
var _ swarm.NetworkBehaviour = (*Behaviour)(nil)

// Config 存活检测配置
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Interval:    config.DefaultPingInterval,
		Timeout:     config.DefaultPingTimeout,
		MaxFailures: config.DefaultPingMaxFailures,
	}
}

// ConfigFromUnified 从统一配置构建
func ConfigFromUnified(c *config.Config) Config {
	if c == nil {
		return DefaultConfig()
	}
	return Config{
		Interval:    c.Ping.Interval.Std(),
		Timeout:     c.Ping.Timeout.Std(),
		MaxFailures: c.Ping.MaxFailures,
	}
}

// Event 一次检测的结果，Err 为 nil 时 RTT 有效
type Event struct {
	Peer   types.NodeID
	ConnID types.ConnID
	RTT    time.Duration
	Err    error
}

// connState 单条连接的检测状态（仅事件循环）
type connState struct {
	conn     pkgif.Connection
	next     time.Time
	inflight bool
	failures int
}

// result 后台检测结果
type result struct {
	peer   types.NodeID
	connID types.ConnID
	rtt    time.Duration
	err    error
}

// Behaviour 周期性检测每条连接
type Behaviour struct {
	cfg   Config
	clock clock.Clock

	// 仅事件循环
	conns map[types.ConnID]*connState
	out   []swarm.ToSwarm

	inbox  *swarm.Mailbox[result]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建存活检测行为
func New(cfg Config) *Behaviour {
	ctx, cancel := context.WithCancel(context.Background())
	return &Behaviour{
		cfg:    cfg,
		clock:  clock.New(),
		conns:  make(map[types.ConnID]*connState),
		inbox:  swarm.NewMailbox[result](),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Name 返回行为名称
func (b *Behaviour) Name() string { return Name }

// Protocols 返回处理的入站协议
func (b *Behaviour) Protocols() []types.ProtocolID {
	return []types.ProtocolID{protocolids.Ping}
}

// Attach 绑定 Swarm
func (b *Behaviour) Attach(h swarm.Host) {
	b.clock = h.Clock()
	b.inbox.SetWaker(h.Wake)
}

// OnConnectionEstablished 新连接在下一次 Tick 时检测
func (b *Behaviour) OnConnectionEstablished(c pkgif.Connection) {
	b.conns[c.ID()] = &connState{conn: c, next: b.clock.Now()}
}

// OnConnectionClosed 停止检测
func (b *Behaviour) OnConnectionClosed(c pkgif.Connection) {
	delete(b.conns, c.ID())
}

// HandleInboundStream 回显对端的 ping
func (b *Behaviour) HandleInboundStream(st pkgif.Stream) {
	b.spawn(func() { echo(st) })
}

// Tick 对到期的连接发起检测
func (b *Behaviour) Tick(now time.Time) {
	if b.ctx.Err() != nil {
		return
	}
	for id, cs := range b.conns {
		if cs.inflight || now.Before(cs.next) {
			continue
		}
		cs.inflight = true
		conn := cs.conn
		b.spawn(func() {
			ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Timeout)
			defer cancel()
			rtt, err := Ping(ctx, conn)
			b.inbox.Post(result{peer: conn.RemotePeer(), connID: id, rtt: rtt, err: err})
		})
	}
}

// Poll 处理检测结果
func (b *Behaviour) Poll(budget int) ([]swarm.ToSwarm, bool) {
	results, more := b.inbox.Drain(budget)
	for _, r := range results {
		b.handleResult(r)
	}
	out := b.out
	b.out = nil
	return out, more
}

func (b *Behaviour) handleResult(r result) {
	cs, ok := b.conns[r.connID]
	if !ok {
		return
	}
	cs.inflight = false
	cs.next = b.clock.Now().Add(b.cfg.Interval)

	if r.err == nil {
		cs.failures = 0
		log.Debug("ping 成功", "peer", r.peer.ShortString(), "conn", r.connID, "rtt", r.rtt)
		b.emit(Event{Peer: r.peer, ConnID: r.connID, RTT: r.rtt})
		return
	}

	cs.failures++
	log.Debug("ping 失败", "peer", r.peer.ShortString(), "conn", r.connID, "failures", cs.failures, "error", r.err)
	b.emit(Event{Peer: r.peer, ConnID: r.connID, Err: r.err})
	if b.cfg.MaxFailures > 0 && cs.failures >= b.cfg.MaxFailures {
		log.Info("连续 ping 失败，关闭连接", "peer", r.peer.ShortString(), "conn", r.connID, "failures", cs.failures)
		delete(b.conns, r.connID)
		b.out = append(b.out, swarm.CloseConnection{Peer: r.peer, ConnID: r.connID})
	}
}

// Close 停止后台检测
func (b *Behaviour) Close() error {
	b.cancel()
	b.wg.Wait()
	b.inbox.Drain(0)
	return nil
}

func (b *Behaviour) emit(ev Event) {
	b.out = append(b.out, swarm.GenerateEvent{Event: ev})
}

func (b *Behaviour) spawn(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}
