package server

import (
	"errors"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
)

var (
	// ErrServerClosed 服务端已关闭
	ErrServerClosed = errors.New("relay server closed")

	// ErrInvalidPolicy 无效的中继策略
	ErrInvalidPolicy = errors.New("invalid relay policy")
)

// ============================================================================
//                              拒绝原因
// ============================================================================

// DenyReason 预留或电路被拒绝的原因
type DenyReason int

const (
	// ReasonNone 未拒绝
	ReasonNone DenyReason = iota
	// ReasonPermissionDenied ACL 拒绝、经中继连接发起、或源与目标相同
	ReasonPermissionDenied
	// ReasonResourceLimitExceeded 预留数、电路数或请求速率超限
	ReasonResourceLimitExceeded
	// ReasonNoReservation 目标没有有效预留
	ReasonNoReservation
	// ReasonDestinationUnreachable 与目标没有可用连接
	ReasonDestinationUnreachable
	// ReasonConnectionFailed 目标拒绝或未能应答 STOP
	ReasonConnectionFailed
	// ReasonRefused 同一节点的预留请求正在处理
	ReasonRefused
	// ReasonTimeout 预留应答未能在时间窗口内写出
	ReasonTimeout
	// ReasonMalformed 请求格式错误
	ReasonMalformed
)

// String 返回原因名称
func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonPermissionDenied:
		return "permission denied"
	case ReasonResourceLimitExceeded:
		return "resource limit exceeded"
	case ReasonNoReservation:
		return "no reservation"
	case ReasonDestinationUnreachable:
		return "destination unreachable"
	case ReasonConnectionFailed:
		return "connection failed"
	case ReasonRefused:
		return "reservation refused"
	case ReasonTimeout:
		return "timeout"
	case ReasonMalformed:
		return "malformed message"
	default:
		return "unknown"
	}
}

// Status 映射为线上状态码
func (r DenyReason) Status() pb.Status {
	switch r {
	case ReasonNone:
		return pb.StatusOK
	case ReasonPermissionDenied:
		return pb.StatusPermissionDenied
	case ReasonResourceLimitExceeded:
		return pb.StatusResourceLimitExceeded
	case ReasonNoReservation:
		return pb.StatusNoReservation
	case ReasonDestinationUnreachable, ReasonConnectionFailed:
		return pb.StatusConnectionFailed
	case ReasonRefused, ReasonTimeout:
		return pb.StatusReservationRefused
	case ReasonMalformed:
		return pb.StatusMalformedMessage
	default:
		return pb.StatusUnexpectedMessage
	}
}

// ============================================================================
//                              电路关闭原因
// ============================================================================

// CloseReason 电路关闭原因
type CloseReason int

const (
	// CloseSrc 发起方关闭或出错
	CloseSrc CloseReason = iota
	// CloseDst 目标方关闭或出错
	CloseDst
	// CloseDataLimit 超出数据配额
	CloseDataLimit
	// CloseConnection 承载电路的连接关闭
	CloseConnection
	// CloseShutdown 服务端关闭
	CloseShutdown
)

// String 返回原因名称
func (r CloseReason) String() string {
	switch r {
	case CloseSrc:
		return "src closed"
	case CloseDst:
		return "dst closed"
	case CloseDataLimit:
		return "data limit"
	case CloseConnection:
		return "connection closed"
	case CloseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// TimeoutPhase 电路超时所处阶段
type TimeoutPhase int

const (
	// PhaseEstablish 等待目标应答 STOP
	PhaseEstablish TimeoutPhase = iota
	// PhaseDuration 超过最长存活时间
	PhaseDuration
	// PhaseIdle 空闲超时
	PhaseIdle
)

// String 返回阶段名称
func (p TimeoutPhase) String() string {
	switch p {
	case PhaseEstablish:
		return "establish"
	case PhaseDuration:
		return "duration"
	case PhaseIdle:
		return "idle"
	default:
		return "unknown"
	}
}
