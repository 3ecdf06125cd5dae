package tcp

import (
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	mss "github.com/multiformats/go-multistream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relay/internal/core/identity"
	"github.com/dep2p/go-relay/internal/core/upgrader"
	"github.com/dep2p/go-relay/pkg/types"
)

const echoProto types.ProtocolID = "/test/echo/1.0.0"

func TestCanDial(t *testing.T) {
	tr := NewTransport(upgrader.NewForIdentity(identity.FromSeed(1)), 0)
	relay := identity.FromSeed(2).ID()

	tests := []struct {
		addr string
		want bool
	}{
		{"/ip4/127.0.0.1/tcp/4001", true},
		{"/ip6/::1/tcp/4001", true},
		{"/dns4/example.com/tcp/4001", true},
		{"/ip4/127.0.0.1/tcp/4001/p2p/" + relay.String(), true},
		{"/ip4/127.0.0.1/udp/4001", false},
		{"/ip4/127.0.0.1/tcp/4001/p2p/" + relay.String() + "/p2p-circuit", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.CanDial(ma.StringCast(tt.addr)))
		})
	}

	require.NoError(t, tr.Close())
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
}

// TestDialListen 测试拨号、监听与协议流
func TestDialListen(t *testing.T) {
	serverID := identity.FromSeed(10)
	clientID := identity.FromSeed(11)

	server := NewTransport(upgrader.NewForIdentity(serverID), 5*time.Second)
	client := NewTransport(upgrader.NewForIdentity(clientID), 5*time.Second)

	ln, err := server.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		s, err := c.AcceptStream()
		if err != nil {
			return
		}
		m := mss.NewMultistreamMuxer[types.ProtocolID]()
		m.AddHandler(echoProto, nil)
		if _, _, err := m.Negotiate(s); err != nil {
			_ = s.Reset()
			return
		}
		_, _ = io.Copy(s, s)
		_ = s.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := ln.Multiaddr().Encapsulate(ma.StringCast("/p2p/" + serverID.ID().String()))
	conn, err := client.Dial(ctx, addr, types.EmptyNodeID)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, serverID.ID(), conn.RemotePeer())

	s, err := conn.OpenStream(ctx, echoProto)
	require.NoError(t, err)
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestDial_PeerMismatch(t *testing.T) {
	tr := NewTransport(upgrader.NewForIdentity(identity.FromSeed(1)), 0)
	a := identity.FromSeed(2).ID()
	b := identity.FromSeed(3).ID()

	_, err := tr.Dial(context.Background(), ma.StringCast("/ip4/127.0.0.1/tcp/1/p2p/"+a.String()), b)
	assert.ErrorIs(t, err, ErrInvalidAddr)
}

func TestListener_Close(t *testing.T) {
	tr := NewTransport(upgrader.NewForIdentity(identity.FromSeed(1)), 0)
	ln, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		done <- err
	}()

	require.NoError(t, ln.Close())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept 未在关闭后返回")
	}
}

func TestListen_InvalidAddr(t *testing.T) {
	tr := NewTransport(upgrader.NewForIdentity(identity.FromSeed(1)), 0)
	_, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0"))
	assert.ErrorIs(t, err, ErrInvalidAddr)
}
