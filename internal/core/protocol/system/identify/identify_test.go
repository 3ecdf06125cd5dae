package identify

import (
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/identity"
	"github.com/dep2p/go-relay/internal/core/relay/relaytest"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

var (
	idA = identity.FromSeed(21)
	idB = identity.FromSeed(22)
)

// ============================================================================
//                              编解码
// ============================================================================

// TestInfo_Unmarshal 未知字段与无效地址被跳过
func TestInfo_Unmarshal(t *testing.T) {
	in := &Info{
		ProtocolVersion: protocolids.IdentifyProtocolVersion,
		AgentVersion:    "go-relay/test",
		PublicKey:       idA.MarshalPublicKey(),
		ListenAddrs:     []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.1/tcp/4001")},
		ObservedAddr:    ma.StringCast("/ip4/203.0.113.7/tcp/4001"),
		Protocols:       []types.ProtocolID{protocolids.Ping, protocolids.RelayHop},
	}
	b := in.Marshal()
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0xff, 0xff})
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	var out Info
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, in.AgentVersion, out.AgentVersion)
	assert.Equal(t, in.ProtocolVersion, out.ProtocolVersion)
	assert.Equal(t, in.PublicKey, out.PublicKey)
	assert.Equal(t, in.Protocols, out.Protocols)
	require.Len(t, out.ListenAddrs, 1)
	assert.True(t, in.ListenAddrs[0].Equal(out.ListenAddrs[0]))
	assert.True(t, in.ObservedAddr.Equal(out.ObservedAddr))
}

// TestInfo_Malformed 截断的消息
func TestInfo_Malformed(t *testing.T) {
	var out Info
	err := out.Unmarshal([]byte{0x0a, 0x05, 0x01})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

// TestReadMsg_TooLarge 长度前缀超过上限
func TestReadMsg_TooLarge(t *testing.T) {
	c := relaytest.NewConn(1, idA.ID(), idB.ID(), false)
	local, remote := relaytest.Pipe(c, nil, protocolids.Identify)
	defer local.Close()
	go func() {
		_, _ = remote.Write(protowire.AppendVarint(nil, MaxMessageSize+1))
	}()
	_, err := readMsg(local)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

// ============================================================================
//                              Behaviour
// ============================================================================

type harness struct {
	t       *testing.T
	b       *Behaviour
	h       *relaytest.Host
	events  []any
	actions []swarm.ToSwarm
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := relaytest.NewHost(idA.ID())
	h.Listen = []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.1/tcp/4001")}
	h.External = []ma.Multiaddr{ma.StringCast("/ip4/203.0.113.1/tcp/4001"), ma.StringCast("/ip4/10.0.0.1/tcp/4001")}
	h.Protos = []types.ProtocolID{protocolids.Identify, protocolids.Ping}

	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	b, err := New(cfg, idA)
	require.NoError(t, err)
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
			if ge, ok := a.(swarm.GenerateEvent); ok {
				x.events = append(x.events, ge.Event)
				continue
			}
			x.actions = append(x.actions, a)
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

func waitEvent[T any](x *harness) T {
	x.t.Helper()
	var out T
	x.pump(func() bool {
		for _, e := range x.events {
			if v, ok := e.(T); ok {
				out = v
				return true
			}
		}
		return false
	})
	return out
}

// answer 以对端身份应答本端打开的 identify 流
func answer(t *testing.T, c *relaytest.Conn, info *Info) {
	t.Helper()
	go func() {
		st := <-c.Opened()
		assert.Equal(t, protocolids.Identify, st.Protocol())
		_ = writeMsg(st, info)
		_ = st.Close()
	}()
}

func remoteInfo(key []byte) *Info {
	return &Info{
		ProtocolVersion: protocolids.IdentifyProtocolVersion,
		AgentVersion:    "remote/1.0",
		PublicKey:       key,
		ListenAddrs:     []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.2/tcp/4001")},
		ObservedAddr:    ma.StringCast("/ip4/203.0.113.9/tcp/4001"),
		Protocols:       []types.ProtocolID{protocolids.RelayStop},
	}
}

// TestRequest_Received 收到对端信息后缓存并报告观测地址
func TestRequest_Received(t *testing.T) {
	x := newHarness(t)
	c := relaytest.NewConn(1, idA.ID(), idB.ID(), false)
	answer(t, c, remoteInfo(idB.MarshalPublicKey()))

	x.b.OnConnectionEstablished(c)
	ev := waitEvent[Received](x)
	assert.Equal(t, idB.ID(), ev.Peer)
	assert.Equal(t, c.ID(), ev.ConnID)
	assert.Equal(t, "remote/1.0", ev.Info.AgentVersion)
	assert.Equal(t, []types.ProtocolID{protocolids.RelayStop}, ev.Info.Protocols)

	cached, ok := x.b.Info(idB.ID())
	require.True(t, ok)
	assert.Equal(t, ev.Info.AgentVersion, cached.AgentVersion)

	require.Len(t, x.actions, 1)
	ea, ok := x.actions[0].(swarm.ExternalAddr)
	require.True(t, ok)
	assert.Equal(t, "/ip4/203.0.113.9/tcp/4001", ea.Addr.String())
}

// TestRequest_RelayedNoObserved 中继连接上的观测地址不报告
func TestRequest_RelayedNoObserved(t *testing.T) {
	x := newHarness(t)
	c := relaytest.NewConn(1, idA.ID(), idB.ID(), true)
	answer(t, c, remoteInfo(idB.MarshalPublicKey()))

	x.b.OnConnectionEstablished(c)
	waitEvent[Received](x)
	assert.Empty(t, x.actions)
}

// TestRequest_Invalid 公钥缺失或不匹配
func TestRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
		err  error
	}{
		{"公钥不匹配", identity.FromSeed(23).MarshalPublicKey(), ErrPeerIDMismatch},
		{"缺少公钥", nil, ErrMissingPublicKey},
		{"公钥无效", []byte{0x08, 0x01}, ErrMalformedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newHarness(t)
			c := relaytest.NewConn(1, idA.ID(), idB.ID(), false)
			answer(t, c, remoteInfo(tt.key))

			x.b.OnConnectionEstablished(c)
			ev := waitEvent[Error](x)
			assert.ErrorIs(t, ev.Err, tt.err)
			_, ok := x.b.Info(idB.ID())
			assert.False(t, ok)
			assert.Empty(t, x.actions)
		})
	}
}

// TestRespond_Sent 写入本端信息
func TestRespond_Sent(t *testing.T) {
	x := newHarness(t)
	c := relaytest.NewConn(1, idA.ID(), idB.ID(), false)
	local, remote := relaytest.Pipe(c, nil, protocolids.Identify)
	defer remote.Close()

	x.b.HandleInboundStream(local)
	info, err := readMsg(remote)
	require.NoError(t, err)

	require.NoError(t, verify(idA.ID(), info))
	assert.Equal(t, config.DefaultAgentVersion, info.AgentVersion)
	assert.Equal(t, protocolids.IdentifyProtocolVersion, info.ProtocolVersion)
	assert.Equal(t, []types.ProtocolID{protocolids.Identify, protocolids.Ping}, info.Protocols)
	assert.Len(t, info.ListenAddrs, 2, "监听地址与外部地址去重")
	require.NotNil(t, info.ObservedAddr)
	assert.True(t, info.ObservedAddr.Equal(c.RemoteMultiaddr()))

	ev := waitEvent[Sent](x)
	assert.Equal(t, idB.ID(), ev.Peer)
}

// TestRespond_RelayedNoObserved 中继连接不携带观测地址
func TestRespond_RelayedNoObserved(t *testing.T) {
	x := newHarness(t)
	c := relaytest.NewConn(1, idA.ID(), idB.ID(), true)
	local, remote := relaytest.Pipe(c, nil, protocolids.Identify)
	defer remote.Close()

	x.b.HandleInboundStream(local)
	info, err := readMsg(remote)
	require.NoError(t, err)
	assert.Nil(t, info.ObservedAddr)
}

func TestConfigFromUnified(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))

	c := config.DefaultConfig()
	c.Identify.AgentVersion = "custom/1"
	assert.Equal(t, "custom/1", ConfigFromUnified(c).AgentVersion)
}
