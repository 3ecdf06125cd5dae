package noise

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relay/internal/core/identity"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

type handshakeResult struct {
	conn pkgif.SecureConn
	err  error
}

// handshakePair 在 net.Pipe 两端并发执行握手
func handshakePair(t *testing.T, client, server *identity.Identity, expect types.NodeID) (handshakeResult, handshakeResult) {
	t.Helper()

	c, s := net.Pipe()
	t.Cleanup(func() {
		_ = c.Close()
		_ = s.Close()
	})

	ct, err := New(client)
	require.NoError(t, err)
	st, err := New(server)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverCh := make(chan handshakeResult, 1)
	go func() {
		sc, err := st.SecureInbound(ctx, s, types.EmptyNodeID)
		if err != nil {
			_ = s.Close()
		}
		serverCh <- handshakeResult{sc, err}
	}()

	cc, err := ct.SecureOutbound(ctx, c, expect)
	if err != nil {
		_ = c.Close()
	}
	return handshakeResult{cc, err}, <-serverCh
}

// TestHandshake_Success 测试双向认证与数据收发
func TestHandshake_Success(t *testing.T) {
	a := identity.FromSeed(1)
	b := identity.FromSeed(2)

	cr, sr := handshakePair(t, a, b, b.ID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	assert.Equal(t, b.ID(), cr.conn.RemotePeer())
	assert.Equal(t, a.ID(), sr.conn.RemotePeer())
	assert.Equal(t, a.ID(), cr.conn.LocalPeer())
	assert.Equal(t, a.MarshalPublicKey(), sr.conn.RemotePublicKey())

	go func() {
		_, _ = cr.conn.Write([]byte("hello"))
	}()
	buf := make([]byte, 5)
	_, err := io.ReadFull(sr.conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

// TestHandshake_PeerMismatch 测试远程身份校验失败
func TestHandshake_PeerMismatch(t *testing.T) {
	a := identity.FromSeed(1)
	b := identity.FromSeed(2)
	other := identity.FromSeed(3)

	cr, _ := handshakePair(t, a, b, other.ID())
	assert.ErrorIs(t, cr.err, ErrPeerIDMismatch)
}

// TestSecureConn_LargeWrite 测试超过单帧上限的写入被分帧
func TestSecureConn_LargeWrite(t *testing.T) {
	a := identity.FromSeed(4)
	b := identity.FromSeed(5)

	cr, sr := handshakePair(t, a, b, types.EmptyNodeID)
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	payload := bytes.Repeat([]byte{0xab}, 3*maxPlaintextSize+17)
	errCh := make(chan error, 1)
	go func() {
		_, err := cr.conn.Write(payload)
		errCh <- err
	}()

	got := make([]byte, len(payload))
	_, err := io.ReadFull(sr.conn, got)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, payload, got)
}

// TestHandshake_ContextCanceled 测试取消 ctx 中断握手
func TestHandshake_ContextCanceled(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	defer s.Close()

	tr, err := New(identity.FromSeed(6))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	// 对端不响应，握手阻塞直到 ctx 取消
	_, err = tr.SecureOutbound(ctx, c, types.EmptyNodeID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestKeyConversion 测试 Ed25519 与 Curve25519 转换一致
func TestKeyConversion(t *testing.T) {
	id := identity.FromSeed(7)
	priv := ed25519ToCurve25519Private(id.PrivateKey())
	pub := ed25519ToCurve25519Public(id.PublicKey())
	require.Len(t, priv, 32)
	require.Len(t, pub, 32)

	// X25519(priv, basepoint) 必须等于由公钥转换得到的 Montgomery 点
	xpriv, err := ecdh.X25519().NewPrivateKey(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, xpriv.PublicKey().Bytes())
}

// TestParsePayload_Invalid 测试非法 payload
func TestParsePayload_Invalid(t *testing.T) {
	_, _, err := parsePayload([]byte{0x0a, 0x05, 0x01})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, _, err = parsePayload(nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
