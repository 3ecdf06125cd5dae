package client

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
)

var (
	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("relay client closed")

	// ErrNotAttached 客户端尚未挂到 Swarm
	ErrNotAttached = errors.New("relay client not attached")

	// ErrNoTarget 中继地址缺少目标节点
	ErrNoTarget = errors.New("relay address has no target peer")

	// ErrRelayedRelay 与中继之间的连接本身经由中继
	ErrRelayedRelay = errors.New("connection to relay is itself relayed")

	// ErrListenUnsupported 中继传输不支持 Listen，入站电路通过预留获得
	ErrListenUnsupported = errors.New("relay transport does not listen, reserve a slot instead")

	// ErrInvalidReservation 中继返回的预留无效
	ErrInvalidReservation = errors.New("invalid reservation from relay")
)

// 中继返回的非 OK 状态
var (
	ErrReservationRefused    = errors.New("reservation refused")
	ErrResourceLimitExceeded = errors.New("resource limit exceeded")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrConnectionFailed      = errors.New("connection failed")
	ErrNoReservation         = errors.New("no reservation")
	ErrMalformedMessage      = errors.New("malformed message")
	ErrUnexpectedMessage     = errors.New("unexpected message")
)

// statusError 将状态码映射为错误
func statusError(s pb.Status) error {
	var base error
	switch s {
	case pb.StatusOK:
		return nil
	case pb.StatusReservationRefused:
		base = ErrReservationRefused
	case pb.StatusResourceLimitExceeded:
		base = ErrResourceLimitExceeded
	case pb.StatusPermissionDenied:
		base = ErrPermissionDenied
	case pb.StatusConnectionFailed:
		base = ErrConnectionFailed
	case pb.StatusNoReservation:
		base = ErrNoReservation
	case pb.StatusMalformedMessage:
		base = ErrMalformedMessage
	default:
		base = ErrUnexpectedMessage
	}
	return fmt.Errorf("%w (status %s)", base, s)
}
