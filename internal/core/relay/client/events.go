package client

import (
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/core/relay/pb"
	"github.com/dep2p/go-relay/pkg/types"
)

// ReservationReqAccepted 中继授予或续期了预留
type ReservationReqAccepted struct {
	Relay   types.NodeID
	Renewed bool
	Expiry  time.Time
	Addrs   []ma.Multiaddr
	Limit   *pb.Limit
}

// ReservationReqFailed 预留请求失败
type ReservationReqFailed struct {
	Relay   types.NodeID
	Renewal bool
	Err     error
}

// ReservationExpired 预留到期且未能续期
type ReservationExpired struct {
	Relay types.NodeID
}

// ReservationClosed 与中继的连接断开，预留失效
type ReservationClosed struct {
	Relay types.NodeID
}

// InboundCircuitEstablished 经中继的入站电路已建立
type InboundCircuitEstablished struct {
	Src   types.NodeID
	Relay types.NodeID
	Limit *pb.Limit
}

// InboundCircuitReqDenied 拒绝了入站电路
type InboundCircuitReqDenied struct {
	Src    types.NodeID
	Relay  types.NodeID
	Status pb.Status
}

// InboundCircuitReqFailed 入站电路应答后升级失败
type InboundCircuitReqFailed struct {
	Src   types.NodeID
	Relay types.NodeID
	Err   error
}

// OutboundCircuitEstablished 经中继的出站电路已建立
type OutboundCircuitEstablished struct {
	Relay types.NodeID
	Dst   types.NodeID
	Limit *pb.Limit
}

// OutboundCircuitReqFailed 出站电路失败
type OutboundCircuitReqFailed struct {
	Relay types.NodeID
	Dst   types.NodeID
	Err   error
}
