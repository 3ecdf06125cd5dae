package metrics

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dep2p/go-relay/internal/core/protocol/system/identify"
	"github.com/dep2p/go-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-relay/internal/core/relay/client"
	"github.com/dep2p/go-relay/internal/core/relay/server"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/pkg/types"
)

const namespace = "relay"

// 确保实现接口
var _ swarm.Observer = (*Metrics)(nil)

// Metrics 中继节点的全部指标
type Metrics struct {
	Registry *prometheus.Registry

	connectionsTotal   *prometheus.CounterVec
	connectionErrors   *prometheus.CounterVec
	activeConnections  *prometheus.GaugeVec
	listenAddrs        prometheus.Gauge
	externalAddrsTotal prometheus.Counter

	reservationsTotal  *prometheus.CounterVec
	activeReservations prometheus.Gauge
	circuitsTotal      *prometheus.CounterVec
	circuitsClosed     *prometheus.CounterVec
	activeCircuits     prometheus.Gauge
	circuitBytes       prometheus.Counter
	circuitDuration    prometheus.Histogram

	clientReservations *prometheus.CounterVec
	clientCircuits     *prometheus.CounterVec

	pingRTT       prometheus.Histogram
	pingFailures  prometheus.Counter
	identifyTotal *prometheus.CounterVec

	// 以下状态仅在 Observe 中访问，mu 用于测试与查询
	mu           sync.Mutex
	circuits     map[uuid.UUID]struct{}
	reservations map[types.NodeID]struct{}
}

// New 使用独立的 Registry 创建指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total established connections, by direction and transport kind.",
		}, []string{"direction", "kind"}),

		connectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Total failed connection attempts, by direction.",
		}, []string{"direction"}),

		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open connections, by transport kind.",
		}, []string{"kind"}),

		listenAddrs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listen_addrs",
			Help:      "Number of active listen addresses.",
		}),

		externalAddrsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_addr_candidates_total",
			Help:      "Total external address candidates reported by peers.",
		}),

		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "reservations_total",
			Help:      "Reservation requests handled, by result.",
		}, []string{"result"}),

		activeReservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_reservations",
			Help:      "Number of active reservations.",
		}),

		circuitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "circuit_requests_total",
			Help:      "Circuit requests handled, by result.",
		}, []string{"result"}),

		circuitsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "circuits_closed_total",
			Help:      "Circuits torn down, by reason.",
		}, []string{"reason"}),

		activeCircuits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_circuits",
			Help:      "Number of established circuits.",
		}),

		circuitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "circuit_bytes_total",
			Help:      "Total bytes forwarded through circuits, both directions.",
		}),

		circuitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "circuit_duration_seconds",
			Help:      "Lifetime of established circuits in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),

		clientReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reservations_total",
			Help:      "Reservation attempts made by the client, by result.",
		}, []string{"result"}),

		clientCircuits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "circuits_total",
			Help:      "Circuits opened or accepted by the client, by direction and result.",
		}, []string{"direction", "result"}),

		pingRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_rtt_seconds",
			Help:      "Round trip time measured by ping.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		pingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_failures_total",
			Help:      "Total failed pings.",
		}),

		identifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identify_total",
			Help:      "Identify exchanges, by result.",
		}, []string{"result"}),

		circuits:     make(map[uuid.UUID]struct{}),
		reservations: make(map[types.NodeID]struct{}),
	}

	reg.MustRegister(
		m.connectionsTotal,
		m.connectionErrors,
		m.activeConnections,
		m.listenAddrs,
		m.externalAddrsTotal,
		m.reservationsTotal,
		m.activeReservations,
		m.circuitsTotal,
		m.circuitsClosed,
		m.activeCircuits,
		m.circuitBytes,
		m.circuitDuration,
		m.clientReservations,
		m.clientCircuits,
		m.pingRTT,
		m.pingFailures,
		m.identifyTotal,
	)
	return m
}

// Observe 更新指标（事件循环中调用）
func (m *Metrics) Observe(ev swarm.Event) {
	if m == nil {
		return
	}
	switch ev := ev.(type) {
	case swarm.ConnectionEstablished:
		kind := connKind(ev.Relayed)
		m.connectionsTotal.WithLabelValues(ev.Direction.String(), kind).Inc()
		m.activeConnections.WithLabelValues(kind).Inc()
	case swarm.ConnectionClosed:
		m.activeConnections.WithLabelValues(connKind(ev.Relayed)).Dec()
	case swarm.OutgoingConnectionError:
		m.connectionErrors.WithLabelValues("outbound").Inc()
	case swarm.IncomingConnectionError:
		m.connectionErrors.WithLabelValues("inbound").Inc()
	case swarm.NewListenAddr:
		m.listenAddrs.Inc()
	case swarm.ListenerClosed:
		m.listenAddrs.Sub(float64(len(ev.Addrs)))
	case swarm.NewExternalAddrCandidate:
		m.externalAddrsTotal.Inc()
	case swarm.BehaviourEvent:
		m.observeBehaviour(ev.Event)
	}
}

func (m *Metrics) observeBehaviour(ev any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev := ev.(type) {
	// 服务端
	case server.ReservationReqAccepted:
		if ev.Renewed {
			m.reservationsTotal.WithLabelValues("renewed").Inc()
		} else {
			m.reservationsTotal.WithLabelValues("accepted").Inc()
		}
		if _, ok := m.reservations[ev.Src]; !ok {
			m.reservations[ev.Src] = struct{}{}
			m.activeReservations.Inc()
		}
	case server.ReservationReqDenied:
		m.reservationsTotal.WithLabelValues("denied_" + ev.Reason.String()).Inc()
	case server.ReservationTimedOut:
		m.dropReservation(ev.Src)
	case server.ReservationClosed:
		m.dropReservation(ev.Src)
	case server.CircuitReqDenied:
		m.circuitsTotal.WithLabelValues("denied_" + ev.Reason.String()).Inc()
	case server.CircuitEstablished:
		m.circuitsTotal.WithLabelValues("established").Inc()
		m.circuits[ev.ID] = struct{}{}
		m.activeCircuits.Inc()
	case server.CircuitClosed:
		m.dropCircuit(ev.ID)
		m.circuitsClosed.WithLabelValues(ev.Reason.String()).Inc()
		m.circuitBytes.Add(float64(ev.Bytes))
		if ev.Duration > 0 {
			m.circuitDuration.Observe(ev.Duration.Seconds())
		}
	case server.CircuitTimedOut:
		m.dropCircuit(ev.ID)
		m.circuitsClosed.WithLabelValues("timeout_" + ev.Phase.String()).Inc()
		m.circuitBytes.Add(float64(ev.Bytes))

	// 客户端
	case client.ReservationReqAccepted:
		m.clientReservations.WithLabelValues("accepted").Inc()
	case client.ReservationReqFailed:
		m.clientReservations.WithLabelValues("failed").Inc()
	case client.InboundCircuitEstablished:
		m.clientCircuits.WithLabelValues("inbound", "established").Inc()
	case client.InboundCircuitReqDenied:
		m.clientCircuits.WithLabelValues("inbound", "denied").Inc()
	case client.InboundCircuitReqFailed:
		m.clientCircuits.WithLabelValues("inbound", "failed").Inc()
	case client.OutboundCircuitEstablished:
		m.clientCircuits.WithLabelValues("outbound", "established").Inc()
	case client.OutboundCircuitReqFailed:
		m.clientCircuits.WithLabelValues("outbound", "failed").Inc()

	// 系统协议
	case ping.Event:
		if ev.Err != nil {
			m.pingFailures.Inc()
		} else {
			m.pingRTT.Observe(ev.RTT.Seconds())
		}
	case identify.Received:
		m.identifyTotal.WithLabelValues("received").Inc()
	case identify.Sent:
		m.identifyTotal.WithLabelValues("sent").Inc()
	case identify.Error:
		m.identifyTotal.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) dropReservation(peer types.NodeID) {
	if _, ok := m.reservations[peer]; ok {
		delete(m.reservations, peer)
		m.activeReservations.Dec()
	}
}

func (m *Metrics) dropCircuit(id uuid.UUID) {
	if _, ok := m.circuits[id]; ok {
		delete(m.circuits, id)
		m.activeCircuits.Dec()
	}
}

func connKind(relayed bool) string {
	if relayed {
		return "relayed"
	}
	return "direct"
}
