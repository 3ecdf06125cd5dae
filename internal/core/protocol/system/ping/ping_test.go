package ping

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/relay/relaytest"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/pkg/protocolids"
)

var (
	local  = relaytest.NodeID(1)
	remote = relaytest.NodeID(2)
)

// serveEcho 在对端回显本端打开的 ping 流
func serveEcho(t *testing.T, c *relaytest.Conn) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case st := <-c.Opened():
				assert.Equal(t, protocolids.Ping, st.Protocol())
				go echo(st)
			case <-done:
				return
			}
		}
	}()
}

// ============================================================================
//                              Ping
// ============================================================================

// TestPing_Success 测试 Ping 成功
func TestPing_Success(t *testing.T) {
	c := relaytest.NewConn(1, local, remote, false)
	serveEcho(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rtt, err := Ping(ctx, c)
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

// TestPing_DataMismatch 测试回显数据不一致
func TestPing_DataMismatch(t *testing.T) {
	c := relaytest.NewConn(1, local, remote, false)
	go func() {
		st := <-c.Opened()
		buf := make([]byte, PingSize)
		if _, err := io.ReadFull(st, buf); err != nil {
			return
		}
		buf[0] ^= 0xff
		_, _ = st.Write(buf)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Ping(ctx, c)
	assert.ErrorIs(t, err, ErrDataMismatch)
}

// TestPing_Timeout 测试对端不应答
func TestPing_Timeout(t *testing.T) {
	c := relaytest.NewConn(1, local, remote, false)
	held := make(chan *relaytest.Stream, 1)
	go func() { held <- <-c.Opened() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Ping(ctx, c)
	assert.Error(t, err)
	_ = (<-held).Close()
}

// TestPing_ConnClosed 测试连接已关闭
func TestPing_ConnClosed(t *testing.T) {
	c := relaytest.NewConn(1, local, remote, false)
	require.NoError(t, c.Close())
	_, err := Ping(context.Background(), c)
	assert.ErrorIs(t, err, relaytest.ErrConnClosed)
}

// TestEcho 测试应答端回显多次请求
func TestEcho(t *testing.T) {
	b := New(DefaultConfig())
	defer b.Close()

	c := relaytest.NewConn(1, local, remote, false)
	st, peer := relaytest.Pipe(c, nil, protocolids.Ping)
	b.HandleInboundStream(st)

	for i := 0; i < 3; i++ {
		_, err := pingOnce(peer)
		require.NoError(t, err)
	}
	require.NoError(t, peer.Close())
}

// ============================================================================
//                              Behaviour
// ============================================================================

type harness struct {
	t      *testing.T
	b      *Behaviour
	h      *relaytest.Host
	events []Event
	closes []swarm.CloseConnection
}

func newHarness(t *testing.T, cfg Config) *harness {
	h := relaytest.NewHost(local)
	b := New(cfg)
	b.Attach(h)
	t.Cleanup(func() { _ = b.Close() })
	return &harness{t: t, b: b, h: h}
}

func (x *harness) pump(cond func() bool) {
	x.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		actions, _ := x.b.Poll(64)
		for _, a := range actions {
			switch a := a.(type) {
			case swarm.GenerateEvent:
				x.events = append(x.events, a.Event.(Event))
			case swarm.CloseConnection:
				x.closes = append(x.closes, a)
			}
		}
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			x.t.Fatalf("条件未满足，已收到事件: %#v", x.events)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// TestBehaviour_Interval 按间隔周期检测
func TestBehaviour_Interval(t *testing.T) {
	x := newHarness(t, Config{Interval: 15 * time.Second, Timeout: 5 * time.Second, MaxFailures: 3})
	c := relaytest.NewConn(1, local, remote, false)
	serveEcho(t, c)

	x.b.OnConnectionEstablished(c)
	x.b.Tick(x.h.Clk.Now())
	x.pump(func() bool { return len(x.events) == 1 })

	ev := x.events[0]
	assert.NoError(t, ev.Err)
	assert.Equal(t, remote, ev.Peer)
	assert.Equal(t, c.ID(), ev.ConnID)
	assert.Greater(t, ev.RTT, time.Duration(0))

	// 间隔未到不检测
	x.b.Tick(x.h.Clk.Now().Add(10 * time.Second))
	time.Sleep(20 * time.Millisecond)
	x.pump(func() bool { return true })
	assert.Len(t, x.events, 1)

	x.h.Clk.Add(15 * time.Second)
	x.b.Tick(x.h.Clk.Now())
	x.pump(func() bool { return len(x.events) == 2 })
	assert.NoError(t, x.events[1].Err)
	assert.Empty(t, x.closes)
}

// TestBehaviour_MaxFailures 连续失败后关闭连接
func TestBehaviour_MaxFailures(t *testing.T) {
	x := newHarness(t, Config{Interval: time.Second, Timeout: 30 * time.Millisecond, MaxFailures: 2})
	c := relaytest.NewConn(1, local, remote, false)

	// 对端持有流但不应答
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case st := <-c.Opened():
				defer st.Close()
			case <-done:
				return
			}
		}
	}()

	x.b.OnConnectionEstablished(c)
	x.b.Tick(x.h.Clk.Now())
	x.pump(func() bool { return len(x.events) == 1 })
	assert.Error(t, x.events[0].Err)
	assert.Empty(t, x.closes)

	x.h.Clk.Add(time.Second)
	x.b.Tick(x.h.Clk.Now())
	x.pump(func() bool { return len(x.closes) == 1 })
	assert.Equal(t, swarm.CloseConnection{Peer: remote, ConnID: c.ID()}, x.closes[0])
	assert.Len(t, x.events, 2)

	// 已关闭的连接不再检测
	x.h.Clk.Add(time.Second)
	x.b.Tick(x.h.Clk.Now())
	assert.Empty(t, x.b.conns)
}

// TestBehaviour_ConnectionClosed 连接关闭后结果被丢弃
func TestBehaviour_ConnectionClosed(t *testing.T) {
	x := newHarness(t, DefaultConfig())
	c := relaytest.NewConn(1, local, remote, false)
	serveEcho(t, c)

	x.b.OnConnectionEstablished(c)
	x.b.Tick(x.h.Clk.Now())
	x.b.OnConnectionClosed(c)

	time.Sleep(50 * time.Millisecond)
	x.pump(func() bool { return true })
	assert.Empty(t, x.events)
}

func TestConfigFromUnified(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))

	c := config.DefaultConfig()
	c.Ping.MaxFailures = 0
	c.Ping.Interval = config.Duration(time.Minute)
	cfg := ConfigFromUnified(c)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Zero(t, cfg.MaxFailures)
}
