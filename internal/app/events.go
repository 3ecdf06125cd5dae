package app

import (
	"context"

	"github.com/dep2p/go-relay/internal/core/protocol/system/identify"
	"github.com/dep2p/go-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-relay/internal/core/relay/client"
	"github.com/dep2p/go-relay/internal/core/relay/server"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/util/logger"
)

var (
	relayLog = logger.Logger("relay")
	eventLog = logger.Logger("event")
)

// LogEvents 消费 Swarm 事件并写日志，直到 ctx 取消或通道关闭
//
// 中继生命周期事件写入 relay 子系统，其它事件以 Debug 级别尽力记录。
func LogEvents(ctx context.Context, events <-chan swarm.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			LogEvent(ev)
		}
	}
}

// LogEvent 记录单个事件
func LogEvent(ev swarm.Event) {
	switch ev := ev.(type) {
	case swarm.NewListenAddr:
		eventLog.Info("新监听地址", "addr", ev.Addr.String())
	case swarm.ListenerClosed:
		eventLog.Warn("监听器已关闭", "addrs", len(ev.Addrs), "error", ev.Err)
	case swarm.NewExternalAddrCandidate:
		eventLog.Info("外部地址候选", "addr", ev.Addr.String())
	case swarm.ConnectionEstablished:
		eventLog.Debug("连接已建立",
			"peer", ev.Peer.ShortString(),
			"endpoint", ev.Endpoint,
			"relayed", ev.Relayed,
			"num", ev.NumEstablished)
	case swarm.ConnectionClosed:
		eventLog.Debug("连接已关闭", "peer", ev.Peer.ShortString(), "num", ev.NumEstablished)
	case swarm.OutgoingConnectionError:
		eventLog.Warn("出站连接失败", "peer", ev.Peer.ShortString(), "addr", ev.Addr, "error", ev.Err)
	case swarm.IncomingConnectionError:
		eventLog.Debug("入站连接失败", "remote", ev.RemoteAddr, "error", ev.Err)
	case swarm.BehaviourEvent:
		logBehaviourEvent(ev)
	default:
		eventLog.Debug("事件", "event", ev)
	}
}

func logBehaviourEvent(be swarm.BehaviourEvent) {
	switch ev := be.Event.(type) {
	// 中继服务端
	case server.ReservationReqAccepted:
		relayLog.Info("预约已接受", "src", ev.Src.ShortString(), "renewed", ev.Renewed, "expiry", ev.Expiry)
	case server.ReservationReqDenied:
		relayLog.Info("预约被拒绝", "src", ev.Src.ShortString(), "reason", ev.Reason.String())
	case server.ReservationTimedOut:
		relayLog.Info("预约已过期", "src", ev.Src.ShortString())
	case server.ReservationClosed:
		relayLog.Info("预约已关闭", "src", ev.Src.ShortString())
	case server.CircuitReqDenied:
		relayLog.Info("电路被拒绝",
			"src", ev.Src.ShortString(),
			"dst", ev.Dst.ShortString(),
			"reason", ev.Reason.String())
	case server.CircuitEstablished:
		relayLog.Info("电路已建立", "id", ev.ID, "src", ev.Src.ShortString(), "dst", ev.Dst.ShortString())
	case server.CircuitClosed:
		relayLog.Info("电路已关闭",
			"id", ev.ID,
			"reason", ev.Reason.String(),
			"bytes", ev.Bytes,
			"duration", ev.Duration)
	case server.CircuitTimedOut:
		relayLog.Info("电路超时", "id", ev.ID, "phase", ev.Phase.String(), "bytes", ev.Bytes)
	case server.ProtocolViolation:
		relayLog.Warn("协议违规", "peer", ev.Peer.ShortString(), "error", ev.Err)

	// 中继客户端
	case client.ReservationReqAccepted:
		relayLog.Info("已在中继上预约",
			"relay", ev.Relay.ShortString(),
			"renewed", ev.Renewed,
			"expiry", ev.Expiry,
			"addrs", len(ev.Addrs))
	case client.ReservationReqFailed:
		relayLog.Warn("预约失败", "relay", ev.Relay.ShortString(), "renewal", ev.Renewal, "error", ev.Err)
	case client.ReservationExpired:
		relayLog.Info("中继预约过期", "relay", ev.Relay.ShortString())
	case client.ReservationClosed:
		relayLog.Info("中继预约结束", "relay", ev.Relay.ShortString())
	case client.InboundCircuitEstablished:
		relayLog.Info("入站电路已建立", "src", ev.Src.ShortString(), "relay", ev.Relay.ShortString())
	case client.InboundCircuitReqDenied:
		relayLog.Info("入站电路被拒绝",
			"src", ev.Src.ShortString(),
			"relay", ev.Relay.ShortString(),
			"status", ev.Status.String())
	case client.InboundCircuitReqFailed:
		relayLog.Warn("入站电路失败", "src", ev.Src.ShortString(), "relay", ev.Relay.ShortString(), "error", ev.Err)
	case client.OutboundCircuitEstablished:
		relayLog.Info("出站电路已建立", "relay", ev.Relay.ShortString(), "dst", ev.Dst.ShortString())
	case client.OutboundCircuitReqFailed:
		relayLog.Warn("出站电路失败", "relay", ev.Relay.ShortString(), "dst", ev.Dst.ShortString(), "error", ev.Err)

	// 其它行为
	case ping.Event:
		if ev.Err != nil {
			eventLog.Debug("ping 失败", "peer", ev.Peer.ShortString(), "error", ev.Err)
		} else {
			eventLog.Debug("ping", "peer", ev.Peer.ShortString(), "rtt", ev.RTT)
		}
	case identify.Received:
		eventLog.Debug("收到 identify",
			"peer", ev.Peer.ShortString(),
			"agent", ev.Info.AgentVersion,
			"protocols", len(ev.Info.Protocols))
	default:
		eventLog.Debug("行为事件", "behaviour", be.Behaviour, "event", be.Event)
	}
}
