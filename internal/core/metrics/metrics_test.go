package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-relay/internal/core/relay/client"
	"github.com/dep2p/go-relay/internal/core/relay/server"
	"github.com/dep2p/go-relay/internal/core/swarm"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

func peer(b byte) types.NodeID {
	var id types.NodeID
	id[0] = b
	return id
}

func behaviour(ev any) swarm.Event {
	return swarm.BehaviourEvent{Behaviour: "test", Event: ev}
}

// gather 返回指定名称的指标族
func gather(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("指标 %s 不存在", name)
	return nil
}

// TestObserve_Connections 连接指标按类型计数
func TestObserve_Connections(t *testing.T) {
	m := New()
	m.Observe(swarm.ConnectionEstablished{Peer: peer(1), ConnID: 1, Direction: pkgif.DirInbound})
	m.Observe(swarm.ConnectionEstablished{Peer: peer(2), ConnID: 2, Direction: pkgif.DirOutbound, Relayed: true})
	m.Observe(swarm.ConnectionClosed{Peer: peer(1), ConnID: 1})
	m.Observe(swarm.OutgoingConnectionError{Peer: peer(3), Err: errors.New("refused")})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeConnections.WithLabelValues("direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections.WithLabelValues("relayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionErrors.WithLabelValues("outbound")))
	assert.Len(t, gather(t, m, "relay_connections_total").GetMetric(), 2)
}

// TestObserve_Reservations 续期不重复计入活跃预留
func TestObserve_Reservations(t *testing.T) {
	m := New()
	m.Observe(behaviour(server.ReservationReqAccepted{Src: peer(1)}))
	m.Observe(behaviour(server.ReservationReqAccepted{Src: peer(1), Renewed: true}))
	m.Observe(behaviour(server.ReservationReqAccepted{Src: peer(2)}))
	m.Observe(behaviour(server.ReservationReqDenied{Src: peer(3), Reason: server.ReasonResourceLimitExceeded}))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeReservations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservationsTotal.WithLabelValues("renewed")))

	m.Observe(behaviour(server.ReservationTimedOut{Src: peer(1)}))
	m.Observe(behaviour(server.ReservationClosed{Src: peer(2)}))
	m.Observe(behaviour(server.ReservationClosed{Src: peer(2)}))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeReservations))
	assert.Equal(t, 3, testutil.CollectAndCount(m.reservationsTotal))
}

// TestObserve_Circuits 只有已建立的电路计入活跃数
func TestObserve_Circuits(t *testing.T) {
	m := New()
	established, pending := uuid.New(), uuid.New()

	m.Observe(behaviour(server.CircuitEstablished{ID: established, Src: peer(1), Dst: peer(2)}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeCircuits))

	m.Observe(behaviour(server.CircuitTimedOut{ID: pending, Phase: server.PhaseEstablish}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeCircuits))

	m.Observe(behaviour(server.CircuitClosed{ID: established, Reason: server.CloseDataLimit, Bytes: 1024, Duration: 3 * time.Second}))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeCircuits))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.circuitBytes))

	h := gather(t, m, "relay_server_circuit_duration_seconds").GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.Equal(t, 3.0, h.GetSampleSum())
}

// TestObserve_ClientAndPing 客户端与 ping 事件
func TestObserve_ClientAndPing(t *testing.T) {
	m := New()
	m.Observe(behaviour(client.ReservationReqAccepted{Relay: peer(1)}))
	m.Observe(behaviour(client.OutboundCircuitReqFailed{Relay: peer(1), Dst: peer(2), Err: client.ErrNoReservation}))
	m.Observe(behaviour(ping.Event{Peer: peer(1), RTT: 20 * time.Millisecond}))
	m.Observe(behaviour(ping.Event{Peer: peer(1), Err: errors.New("timeout")}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.clientReservations.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clientCircuits.WithLabelValues("outbound", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pingFailures))
}

// TestServe 暴露 /metrics 并在 ctx 取消后退出
func TestServe(t *testing.T) {
	m := New()
	m.Observe(behaviour(server.CircuitEstablished{ID: uuid.New()}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "relay_server_active_circuits 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve 未退出")
	}
}
