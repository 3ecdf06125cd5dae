package swarm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dep2p/go-relay/internal/core/identity"
	"github.com/dep2p/go-relay/internal/core/transport/tcp"
	"github.com/dep2p/go-relay/internal/core/upgrader"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

const echoProto types.ProtocolID = "/test/echo/1.0.0"

// ============================================================================
//                              测试行为
// ============================================================================

type testBehaviour struct {
	name    string
	protos  []types.ProtocolID
	host    Host
	box     *Mailbox[any]
	streams chan pkgif.Stream

	// 仅事件循环访问
	established []types.ConnID
	closed      []types.ConnID
	ticks       int
}

func newTestBehaviour(name string, protos ...types.ProtocolID) *testBehaviour {
	return &testBehaviour{
		name:    name,
		protos:  protos,
		box:     NewMailbox[any](),
		streams: make(chan pkgif.Stream, 16),
	}
}

func (b *testBehaviour) Name() string                       { return b.name }
func (b *testBehaviour) Protocols() []types.ProtocolID      { return b.protos }
func (b *testBehaviour) Tick(time.Time)                     { b.ticks++ }
func (b *testBehaviour) HandleInboundStream(s pkgif.Stream) { b.streams <- s }

func (b *testBehaviour) Attach(h Host) {
	b.host = h
	b.box.SetWaker(h.Wake)
}

func (b *testBehaviour) OnConnectionEstablished(c pkgif.Connection) {
	b.established = append(b.established, c.ID())
}

func (b *testBehaviour) OnConnectionClosed(c pkgif.Connection) {
	b.closed = append(b.closed, c.ID())
}

// Poll 消息为 ToSwarm 时原样执行，否则作为事件输出
func (b *testBehaviour) Poll(budget int) ([]ToSwarm, bool) {
	items, more := b.box.Drain(budget)
	actions := make([]ToSwarm, 0, len(items))
	for _, it := range items {
		if a, ok := it.(ToSwarm); ok {
			actions = append(actions, a)
			continue
		}
		actions = append(actions, GenerateEvent{Event: it})
	}
	return actions, more
}

// ============================================================================
//                              辅助函数
// ============================================================================

func newTestSwarm(t *testing.T, seed uint8, cfg Config, bs ...NetworkBehaviour) *Swarm {
	t.Helper()
	id := identity.FromSeed(seed)
	tr := tcp.NewTransport(upgrader.NewForIdentity(id), 5*time.Second)
	s, err := NewSwarm(id.ID(), WithConfig(cfg), WithTransports(tr), WithBehaviours(bs...))
	require.NoError(t, err)

	go func() { _ = s.Run(context.Background()) }()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Hour
	return cfg
}

// nextEvent 等待满足条件的事件，跳过其它事件
func nextEvent[T Event](t *testing.T, s *Swarm, match func(T) bool) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatal("事件通道已关闭")
			}
			if e, ok := ev.(T); ok && (match == nil || match(e)) {
				return e
			}
		case <-timeout:
			var zero T
			t.Fatalf("等待事件 %T 超时", zero)
		}
	}
}

// ============================================================================
//                              测试
// ============================================================================

func TestNewSwarm_DuplicateProtocol(t *testing.T) {
	id := identity.FromSeed(1)
	_, err := NewSwarm(id.ID(), WithBehaviours(
		newTestBehaviour("a", echoProto),
		newTestBehaviour("b", echoProto),
	))
	assert.ErrorIs(t, err, ErrDuplicateProtocol)

	_, err = NewSwarm(types.EmptyNodeID)
	assert.Error(t, err)
}

// TestPoll_Fairness 积压的行为不会让其它行为饿死
func TestPoll_Fairness(t *testing.T) {
	cfg := testConfig()
	cfg.PollBudget = 4

	busy := newTestBehaviour("a-busy")
	quiet := newTestBehaviour("b-quiet")

	id := identity.FromSeed(2)
	s, err := NewSwarm(id.ID(), WithConfig(cfg), WithBehaviours(busy, quiet))
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		busy.box.Post(i)
	}
	quiet.box.Post("quiet")

	go func() { _ = s.Run(context.Background()) }()
	defer s.Close()

	for i := 0; ; i++ {
		ev := nextEvent[BehaviourEvent](t, s, nil)
		if ev.Behaviour == "b-quiet" {
			assert.LessOrEqual(t, i, cfg.PollBudget, "quiet 行为的事件应在第一轮输出")
			break
		}
	}

	// busy 的事件保持投递顺序
	prev := -1
	for n := 0; n < 50; n++ {
		ev := nextEvent[BehaviourEvent](t, s, nil)
		v := ev.Event.(int)
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestExec(t *testing.T) {
	b := newTestBehaviour("exec")
	s := newTestSwarm(t, 3, testConfig(), b)

	var peers int
	err := s.Exec(context.Background(), func() { peers = len(s.Peers()) })
	require.NoError(t, err)
	assert.Zero(t, peers)

	require.NoError(t, s.Close())
	err = s.Exec(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrSwarmClosed)
}

func TestRun_Twice(t *testing.T) {
	s := newTestSwarm(t, 4, testConfig())
	require.Eventually(t, func() bool { return s.started.Load() }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)
}

// TestConnect_Streams 测试连接、入站流路由与关闭事件
func TestConnect_Streams(t *testing.T) {
	serverB := newTestBehaviour("echo", echoProto)
	clientB := newTestBehaviour("echo", echoProto)
	server := newTestSwarm(t, 10, testConfig(), serverB)
	client := newTestSwarm(t, 11, testConfig(), clientB)

	addrs, err := server.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	la := nextEvent[NewListenAddr](t, server, nil)
	assert.True(t, la.Addr.Equal(addrs[0]))

	target := addrs[0].Encapsulate(ma.StringCast("/p2p/" + server.LocalPeer().String()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, server.LocalPeer(), conn.RemotePeer())

	est := nextEvent[ConnectionEstablished](t, client, nil)
	assert.Equal(t, conn.ID(), est.ConnID)
	assert.Equal(t, pkgif.DirOutbound, est.Direction)
	assert.Equal(t, 1, est.NumEstablished)

	in := nextEvent[ConnectionEstablished](t, server, nil)
	assert.Equal(t, client.LocalPeer(), in.Peer)
	assert.Equal(t, pkgif.DirInbound, in.Direction)

	// 已有连接时复用
	again, err := client.Connect(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, conn.ID(), again.ID())

	// 入站流协商后交给行为
	st, err := conn.OpenStream(ctx, echoProto)
	require.NoError(t, err)
	_, err = st.Write([]byte("hi"))
	require.NoError(t, err)

	var inbound pkgif.Stream
	select {
	case inbound = <-serverB.streams:
	case <-time.After(5 * time.Second):
		t.Fatal("入站流未送达行为")
	}
	assert.Equal(t, echoProto, inbound.Protocol())
	buf := make([]byte, 2)
	_, err = io.ReadFull(inbound, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf))

	// 行为请求关闭连接
	clientB.box.Post(CloseConnection{Peer: server.LocalPeer()})
	closed := nextEvent[ConnectionClosed](t, client, nil)
	assert.Equal(t, conn.ID(), closed.ConnID)
	assert.Zero(t, closed.NumEstablished)

	remote := nextEvent[ConnectionClosed](t, server, nil)
	assert.Equal(t, client.LocalPeer(), remote.Peer)

	var est2, closed2 []types.ConnID
	require.NoError(t, client.Exec(ctx, func() {
		est2 = append(est2, clientB.established...)
		closed2 = append(closed2, clientB.closed...)
	}))
	assert.Equal(t, []types.ConnID{conn.ID()}, est2)
	assert.Equal(t, []types.ConnID{conn.ID()}, closed2)
}

func TestConnect_Failure(t *testing.T) {
	client := newTestSwarm(t, 12, testConfig())
	peer := identity.FromSeed(13).ID()

	// 端口 1 上通常没有监听
	target := ma.StringCast("/ip4/127.0.0.1/tcp/1/p2p/" + peer.String())
	_, err := client.Connect(context.Background(), target)
	assert.ErrorIs(t, err, ErrDialFailed)

	dialing := nextEvent[Dialing](t, client, nil)
	assert.Equal(t, peer, dialing.Peer)
	failed := nextEvent[OutgoingConnectionError](t, client, nil)
	assert.True(t, errors.Is(failed.Err, ErrDialFailed))

	_, err = client.Connect(context.Background(), ma.StringCast("/ip4/127.0.0.1/udp/1/p2p/"+peer.String()))
	assert.ErrorIs(t, err, ErrNoTransport)

	_, err = client.Connect(context.Background(), ma.StringCast("/ip4/127.0.0.1/tcp/1/p2p/"+client.LocalPeer().String()))
	assert.ErrorIs(t, err, ErrDialToSelf)
}

func TestListen_Failure(t *testing.T) {
	s := newTestSwarm(t, 14, testConfig())
	_, err := s.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0"))
	assert.ErrorIs(t, err, ErrListenFailed)

	addrs, err := s.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)

	// 端口已被占用
	_, err = s.Listen(addrs[0])
	assert.ErrorIs(t, err, ErrListenFailed)
}

func TestExternalAddr(t *testing.T) {
	b := newTestBehaviour("identify")
	s := newTestSwarm(t, 15, testConfig(), b)

	addr := ma.StringCast("/ip4/8.8.8.8/tcp/4001")
	b.box.Post(ExternalAddr{Addr: addr})
	b.box.Post(ExternalAddr{Addr: addr})

	ev := nextEvent[NewExternalAddrCandidate](t, s, nil)
	assert.True(t, addr.Equal(ev.Addr))

	var ext []ma.Multiaddr
	require.NoError(t, s.Exec(context.Background(), func() { ext = s.ExternalAddrs() }))
	assert.Len(t, ext, 1)
}

func TestClose_NoLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	id := identity.FromSeed(16)
	tr := tcp.NewTransport(upgrader.NewForIdentity(id), time.Second)
	s, err := NewSwarm(id.ID(), WithConfig(testConfig()), WithTransports(tr))
	require.NoError(t, err)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = s.Run(context.Background())
	}()
	_, err = s.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	<-runDone

	// 事件通道随关闭而关闭
	for range s.Events() {
	}
}
