package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-relay/pkg/types"
)

// ReservationReqAccepted 预留已授予（应答已写出）
type ReservationReqAccepted struct {
	Src     types.NodeID
	Renewed bool
	Expiry  time.Time
}

// ReservationReqDenied 预留被拒绝
type ReservationReqDenied struct {
	Src    types.NodeID
	Reason DenyReason
}

// ReservationTimedOut 预留到期
type ReservationTimedOut struct {
	Src types.NodeID
}

// ReservationClosed 预留因连接关闭而失效
type ReservationClosed struct {
	Src types.NodeID
}

// CircuitReqDenied 电路请求被拒绝
type CircuitReqDenied struct {
	Src    types.NodeID
	Dst    types.NodeID
	Reason DenyReason
}

// CircuitEstablished 电路已建立，开始转发
type CircuitEstablished struct {
	ID  uuid.UUID
	Src types.NodeID
	Dst types.NodeID
}

// CircuitClosed 电路已关闭
type CircuitClosed struct {
	ID       uuid.UUID
	Src      types.NodeID
	Dst      types.NodeID
	Reason   CloseReason
	Bytes    int64
	Duration time.Duration
}

// CircuitTimedOut 电路超时
type CircuitTimedOut struct {
	ID    uuid.UUID
	Src   types.NodeID
	Dst   types.NodeID
	Phase TimeoutPhase
	Bytes int64
}

// ProtocolViolation 对端发送了无法处理的消息
type ProtocolViolation struct {
	Peer types.NodeID
	Err  error
}
