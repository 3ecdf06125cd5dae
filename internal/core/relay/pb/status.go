package pb

import "fmt"

// Status 状态码
type Status int32

const (
	// StatusUnused 未设置
	StatusUnused Status = 0
	// StatusOK 成功
	StatusOK Status = 100
	// StatusReservationRefused 预留被拒绝
	StatusReservationRefused Status = 200
	// StatusResourceLimitExceeded 资源超限
	StatusResourceLimitExceeded Status = 201
	// StatusPermissionDenied 权限拒绝
	StatusPermissionDenied Status = 202
	// StatusConnectionFailed 无法连接目标
	StatusConnectionFailed Status = 203
	// StatusNoReservation 目标没有预留
	StatusNoReservation Status = 204
	// StatusMalformedMessage 消息格式错误
	StatusMalformedMessage Status = 400
	// StatusUnexpectedMessage 意外消息
	StatusUnexpectedMessage Status = 401
)

// String 返回状态码名称
func (s Status) String() string {
	switch s {
	case StatusUnused:
		return "UNUSED"
	case StatusOK:
		return "OK"
	case StatusReservationRefused:
		return "RESERVATION_REFUSED"
	case StatusResourceLimitExceeded:
		return "RESOURCE_LIMIT_EXCEEDED"
	case StatusPermissionDenied:
		return "PERMISSION_DENIED"
	case StatusConnectionFailed:
		return "CONNECTION_FAILED"
	case StatusNoReservation:
		return "NO_RESERVATION"
	case StatusMalformedMessage:
		return "MALFORMED_MESSAGE"
	case StatusUnexpectedMessage:
		return "UNEXPECTED_MESSAGE"
	default:
		return fmt.Sprintf("STATUS(%d)", int32(s))
	}
}

// HopType HOP 消息类型
type HopType int32

const (
	// HopReserve 预留请求
	HopReserve HopType = 0
	// HopConnect 连接请求
	HopConnect HopType = 1
	// HopStatus 状态响应
	HopStatus HopType = 2
)

// String 返回类型名称
func (t HopType) String() string {
	switch t {
	case HopReserve:
		return "RESERVE"
	case HopConnect:
		return "CONNECT"
	case HopStatus:
		return "STATUS"
	default:
		return fmt.Sprintf("HOP(%d)", int32(t))
	}
}

// StopType STOP 消息类型
type StopType int32

const (
	// StopConnect 连接通知
	StopConnect StopType = 0
	// StopStatus 状态响应
	StopStatus StopType = 1
)

// String 返回类型名称
func (t StopType) String() string {
	switch t {
	case StopConnect:
		return "CONNECT"
	case StopStatus:
		return "STATUS"
	default:
		return fmt.Sprintf("STOP(%d)", int32(t))
	}
}
