package upgrader

import (
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	mss "github.com/multiformats/go-multistream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relay/internal/core/identity"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

const testProto types.ProtocolID = "/test/echo/1.0.0"

type upgradeResult struct {
	conn *Conn
	err  error
}

// upgradePair 建立一对 TCP 连接并在两端升级
func upgradePair(t *testing.T, client, server *identity.Identity, expect types.NodeID) (upgradeResult, upgradeResult) {
	t.Helper()

	ln, err := manet.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverCh := make(chan upgradeResult, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			serverCh <- upgradeResult{err: err}
			return
		}
		c, err := NewForIdentity(server).Upgrade(ctx, raw, pkgif.DirInbound, types.EmptyNodeID)
		serverCh <- upgradeResult{c, err}
	}()

	raw, err := manet.Dial(ln.Multiaddr())
	require.NoError(t, err)
	c, err := NewForIdentity(client).Upgrade(ctx, raw, pkgif.DirOutbound, expect)
	sr := <-serverCh

	for _, r := range []upgradeResult{{c, err}, sr} {
		if r.conn != nil {
			conn := r.conn
			t.Cleanup(func() { _ = conn.Close() })
		}
	}
	return upgradeResult{c, err}, sr
}

// TestUpgrade_Success 测试升级与协议流
func TestUpgrade_Success(t *testing.T) {
	a := identity.FromSeed(1)
	b := identity.FromSeed(2)

	cr, sr := upgradePair(t, a, b, b.ID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	assert.Equal(t, b.ID(), cr.conn.RemotePeer())
	assert.Equal(t, a.ID(), sr.conn.RemotePeer())
	assert.NotEqual(t, cr.conn.ID(), sr.conn.ID())
	assert.False(t, cr.conn.IsRelayed())
	assert.Equal(t, pkgif.DirOutbound, cr.conn.Stat().Direction)
	assert.Equal(t, pkgif.DirInbound, sr.conn.Stat().Direction)

	// 服务端：接受流、协商、回显
	go func() {
		s, err := sr.conn.AcceptStream()
		if err != nil {
			return
		}
		m := mss.NewMultistreamMuxer[types.ProtocolID]()
		m.AddHandler(testProto, nil)
		proto, _, err := m.Negotiate(s)
		if err != nil {
			_ = s.Reset()
			return
		}
		s.SetProtocol(proto)
		_, _ = io.Copy(s, s)
		_ = s.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := cr.conn.OpenStream(ctx, testProto)
	require.NoError(t, err)
	assert.Equal(t, testProto, s.Protocol())
	assert.Equal(t, cr.conn, s.Conn())

	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	require.NoError(t, s.Close())
}

// TestUpgrade_PeerMismatch 测试出站身份校验
func TestUpgrade_PeerMismatch(t *testing.T) {
	cr, _ := upgradePair(t, identity.FromSeed(1), identity.FromSeed(2), identity.FromSeed(3).ID())
	require.Error(t, cr.err)
}

// TestUpgrade_OutboundRequiresPeer 测试出站必须指定远程节点
func TestUpgrade_OutboundRequiresPeer(t *testing.T) {
	ln, err := manet.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer ln.Close()

	raw, err := manet.Dial(ln.Multiaddr())
	require.NoError(t, err)

	_, err = NewForIdentity(identity.FromSeed(1)).Upgrade(context.Background(), raw, pkgif.DirOutbound, types.EmptyNodeID)
	assert.ErrorIs(t, err, ErrNoPeerID)
}

// TestConn_Close 测试关闭后无法打开流
func TestConn_Close(t *testing.T) {
	cr, sr := upgradePair(t, identity.FromSeed(4), identity.FromSeed(5), identity.FromSeed(5).ID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	require.NoError(t, cr.conn.Close())
	assert.True(t, cr.conn.IsClosed())
	_, err := cr.conn.OpenStream(context.Background(), testProto)
	assert.ErrorIs(t, err, ErrConnClosed)

	// 对端 AcceptStream 随会话关闭返回错误
	_, err = sr.conn.AcceptStream()
	assert.Error(t, err)
}

// TestNewConn_Relayed 远程地址含 /p2p-circuit 的连接被标记为中继连接
func TestNewConn_Relayed(t *testing.T) {
	relayID := identity.FromSeed(9).ID()
	direct := ma.StringCast("/ip4/1.2.3.4/tcp/4001")
	relayed := ma.StringCast("/ip4/1.2.3.4/tcp/4001/p2p/" + relayID.String() + "/p2p-circuit")

	assert.False(t, newConn(nil, nil, nil, direct, pkgif.DirOutbound, 0).IsRelayed())
	c := newConn(nil, nil, nil, relayed, pkgif.DirInbound, 0)
	assert.True(t, c.IsRelayed())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, ErrNilIdentity)

	_, err = New(identity.FromSeed(1), Config{})
	assert.ErrorIs(t, err, ErrNoSecurityTransport)
}
