package swarm

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"

	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("swarm")

// 确保实现接口
var _ Host = (*Swarm)(nil)

// Swarm 连接群与行为调度器
//
// 单个事件循环 goroutine（Run）独占连接表、监听表与全部行为状态。
// 其它 goroutine 只能通过 inbox 投递消息，或通过 Exec 在循环中执行闭包。
type Swarm struct {
	localPeer  types.NodeID
	cfg        Config
	clock      clock.Clock
	transports []pkgif.Transport
	behaviours []NetworkBehaviour
	protocols  map[types.ProtocolID]NetworkBehaviour
	protoList  []types.ProtocolID
	mux        *mss.MultistreamMuxer[types.ProtocolID]
	observer   Observer

	// 以下字段仅由事件循环访问
	conns         map[types.NodeID][]pkgif.Connection
	connByID      map[types.ConnID]pkgif.Connection
	listeners     map[pkgif.Listener][]ma.Multiaddr
	listenAddrs   []ma.Multiaddr
	externalAddrs []ma.Multiaddr
	pollOffset    int
	outq          []Event
	dropped       int
	runCtx        context.Context
	cancelRun     context.CancelFunc

	inbox  *Mailbox[swarmMsg]
	wake   chan struct{}
	execCh chan execReq
	events chan Event

	// lnMu 保护 openListeners 与 closed，用于关闭时回收尚未登记的监听器
	lnMu          sync.Mutex
	openListeners map[pkgif.Listener]struct{}
	closed        bool

	started      atomic.Bool
	stopOnce     sync.Once
	stop         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
	wg           sync.WaitGroup
}

type execReq struct {
	fn   func()
	done chan struct{}
}

// NewSwarm 创建 Swarm
//
// 行为在此处 Attach，并按名称排序以获得稳定的轮询顺序。
func NewSwarm(localPeer types.NodeID, opts ...Option) (*Swarm, error) {
	if localPeer.IsEmpty() {
		return nil, fmt.Errorf("localPeer cannot be empty")
	}

	s := &Swarm{
		localPeer:     localPeer,
		cfg:           DefaultConfig(),
		clock:         clock.New(),
		protocols:     make(map[types.ProtocolID]NetworkBehaviour),
		mux:           mss.NewMultistreamMuxer[types.ProtocolID](),
		conns:         make(map[types.NodeID][]pkgif.Connection),
		connByID:      make(map[types.ConnID]pkgif.Connection),
		listeners:     make(map[pkgif.Listener][]ma.Multiaddr),
		inbox:         NewMailbox[swarmMsg](),
		wake:          make(chan struct{}, 1),
		execCh:        make(chan execReq),
		openListeners: make(map[pkgif.Listener]struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.events = make(chan Event, s.cfg.EventBuffer)
	s.inbox.SetWaker(s.Wake)

	sort.SliceStable(s.behaviours, func(i, j int) bool {
		return s.behaviours[i].Name() < s.behaviours[j].Name()
	})
	for _, b := range s.behaviours {
		for _, p := range b.Protocols() {
			if other, ok := s.protocols[p]; ok {
				return nil, fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateProtocol, p, other.Name(), b.Name())
			}
			s.protocols[p] = b
			s.protoList = append(s.protoList, p)
			s.mux.AddHandler(p, nil)
		}
	}
	sort.Slice(s.protoList, func(i, j int) bool { return s.protoList[i] < s.protoList[j] })
	for _, b := range s.behaviours {
		b.Attach(s)
	}

	log.Debug("Swarm 已创建",
		"localPeer", localPeer.ShortString(),
		"transports", len(s.transports),
		"behaviours", len(s.behaviours))
	return s, nil
}

// ============================================================================
//                              事件循环
// ============================================================================

// Run 运行事件循环，直到 ctx 取消或 Close 被调用
//
// 每轮依次：处理内部消息、轮询行为、输出事件。Tick 由定时器驱动。
func (s *Swarm) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.runCtx, s.cancelRun = context.WithCancel(ctx)
	defer s.shutdown()

	ticker := s.clock.Ticker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if s.drainInbox() {
			s.Wake()
		}
		if s.pollBehaviours() {
			s.Wake()
		}

		var out chan<- Event
		var next Event
		if len(s.outq) > 0 {
			out = s.events
			next = s.outq[0]
		}

		select {
		case <-s.runCtx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-s.wake:
		case req := <-s.execCh:
			req.fn()
			close(req.done)
		case now := <-ticker.C:
			for _, b := range s.behaviours {
				b.Tick(now)
			}
		case out <- next:
			s.outq[0] = nil
			s.outq = s.outq[1:]
		}
	}
}

// Close 停止事件循环并关闭全部监听器、连接与行为
func (s *Swarm) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	} else {
		s.shutdown()
	}
	return s.shutdownErr
}

// Done 事件循环退出后关闭
func (s *Swarm) Done() <-chan struct{} {
	return s.done
}

func (s *Swarm) shutdown() {
	s.shutdownOnce.Do(func() {
		if s.cancelRun != nil {
			s.cancelRun()
		}

		var errs error
		s.lnMu.Lock()
		s.closed = true
		for ln := range s.openListeners {
			errs = multierr.Append(errs, ln.Close())
		}
		s.lnMu.Unlock()

		for _, c := range s.connByID {
			_ = c.Close()
		}
		close(s.done)
		s.wg.Wait()

		// 回收关闭期间仍在途的连接与流
		leftovers, _ := s.inbox.Drain(0)
		for _, m := range leftovers {
			m.discard()
		}

		for _, b := range s.behaviours {
			if c, ok := b.(io.Closer); ok {
				errs = multierr.Append(errs, c.Close())
			}
		}
		for _, t := range s.transports {
			errs = multierr.Append(errs, t.Close())
		}
		close(s.events)

		s.shutdownErr = errs
		log.Debug("Swarm 已关闭", "localPeer", s.localPeer.ShortString())
	})
}

// Events 返回事件通道，Swarm 关闭后通道被关闭
func (s *Swarm) Events() <-chan Event {
	return s.events
}

// emit 输出事件（仅事件循环）
func (s *Swarm) emit(ev Event) {
	if s.observer != nil {
		s.observer.Observe(ev)
	}
	if len(s.outq) >= maxPendingEvents {
		s.outq[0] = nil
		s.outq = s.outq[1:]
		s.dropped++
		if s.dropped == 1 || s.dropped%1000 == 0 {
			log.Warn("事件无人消费，丢弃最旧事件", "dropped", s.dropped)
		}
	}
	s.outq = append(s.outq, ev)
}

// ============================================================================
//                              Host 实现
// ============================================================================

// LocalPeer 返回本地节点 ID
func (s *Swarm) LocalPeer() types.NodeID {
	return s.localPeer
}

// Clock 返回时钟
func (s *Swarm) Clock() clock.Clock {
	return s.clock
}

// Wake 唤醒事件循环
func (s *Swarm) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Exec 在事件循环中执行 fn
func (s *Swarm) Exec(ctx context.Context, fn func()) error {
	req := execReq{fn: fn, done: make(chan struct{})}
	select {
	case s.execCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSwarmClosed
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSwarmClosed
	}
}

// Connection 返回与 peer 最近建立且未关闭的连接
func (s *Swarm) Connection(peer types.NodeID) pkgif.Connection {
	for _, c := range s.conns[peer] {
		if !c.IsClosed() {
			return c
		}
	}
	return nil
}

// ConnectionByID 按序号查找连接
func (s *Swarm) ConnectionByID(id types.ConnID) pkgif.Connection {
	return s.connByID[id]
}

// ListenAddrs 返回当前监听地址
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	return append([]ma.Multiaddr(nil), s.listenAddrs...)
}

// ExternalAddrs 返回外部地址
func (s *Swarm) ExternalAddrs() []ma.Multiaddr {
	return append([]ma.Multiaddr(nil), s.externalAddrs...)
}

// Protocols 返回注册的入站协议
func (s *Swarm) Protocols() []types.ProtocolID {
	return append([]types.ProtocolID(nil), s.protoList...)
}

// Peers 返回已连接节点（仅事件循环）
func (s *Swarm) Peers() []types.NodeID {
	peers := make([]types.NodeID, 0, len(s.conns))
	for p := range s.conns {
		peers = append(peers, p)
	}
	return peers
}

// NumConnections 返回连接数（仅事件循环）
func (s *Swarm) NumConnections() int {
	return len(s.connByID)
}

// Snapshot 连接表快照
type Snapshot struct {
	Peers       int
	Connections int
	ListenAddrs []ma.Multiaddr
	External    []ma.Multiaddr
}

// Snapshot 通过 Exec 获取连接表快照（任意 goroutine）
func (s *Swarm) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.Exec(ctx, func() {
		snap = Snapshot{
			Peers:       len(s.conns),
			Connections: len(s.connByID),
			ListenAddrs: s.ListenAddrs(),
			External:    s.ExternalAddrs(),
		}
	})
	return snap, err
}
