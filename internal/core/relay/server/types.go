package server

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// ReservationStatus 预留状态
type ReservationStatus int

const (
	// ReservationPending 已接受，应答尚未写出
	ReservationPending ReservationStatus = iota
	// ReservationActive 生效中
	ReservationActive
	// ReservationExpired 已过期或连接已断开
	ReservationExpired
	// ReservationDenied 已拒绝
	ReservationDenied
)

// String 返回状态名称
func (s ReservationStatus) String() string {
	switch s {
	case ReservationPending:
		return "pending"
	case ReservationActive:
		return "active"
	case ReservationExpired:
		return "expired"
	case ReservationDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Reservation 预留
//
// 每个节点至多一条。预留绑定在发起请求的连接上，连接断开即失效。
type Reservation struct {
	Peer    types.NodeID
	ConnID  types.ConnID
	Status  ReservationStatus
	Expiry  time.Time
	Renewed bool
	Addrs   []ma.Multiaddr

	// 续期应答写失败时回滚
	prevExpiry time.Time
	prevConn   types.ConnID
}

// CircuitState 电路状态
type CircuitState int

const (
	// StateRequested 请求已收到
	StateRequested CircuitState = iota
	// StateEstablishing 等待目标应答 STOP
	StateEstablishing
	// StateActive 正在转发
	StateActive
	// StateClosed 已关闭
	StateClosed
	// StateDenied 已拒绝
	StateDenied
	// StateTimedOut 已超时
	StateTimedOut
)

// String 返回状态名称
func (s CircuitState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateEstablishing:
		return "establishing"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateDenied:
		return "denied"
	case StateTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// circuit 电路（仅事件循环）
type circuit struct {
	id      uuid.UUID
	src     types.NodeID
	dst     types.NodeID
	srcConn types.ConnID
	dstConn types.ConnID
	status  CircuitState

	created     time.Time
	established time.Time
	// deadline 建立阶段为建立超时，转发阶段为最长存活时间
	deadline time.Time

	srcStream pkgif.Stream
	dstStream pkgif.Stream
	cancel    func()

	// 与转发 goroutine 共享
	counters *counters
}

// counters 转发计数，由两个方向的转发 goroutine 更新
type counters struct {
	srcToDst     atomic.Int64
	dstToSrc     atomic.Int64
	lastActivity atomic.Int64
}

func (c *counters) total() int64 {
	return c.srcToDst.Load() + c.dstToSrc.Load()
}

func (c *counters) touch(now time.Time) {
	c.lastActivity.Store(now.UnixNano())
}

func (c *counters) idleSince() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// CircuitInfo 电路快照
type CircuitInfo struct {
	ID           uuid.UUID
	Src          types.NodeID
	Dst          types.NodeID
	Status       CircuitState
	Created      time.Time
	Established  time.Time
	Bytes        int64
	LastActivity time.Time
}

func (c *circuit) info() CircuitInfo {
	return CircuitInfo{
		ID:           c.id,
		Src:          c.src,
		Dst:          c.dst,
		Status:       c.status,
		Created:      c.created,
		Established:  c.established,
		Bytes:        c.counters.total(),
		LastActivity: c.counters.idleSince(),
	}
}

// Decision 预留或电路请求的处理结果
type Decision struct {
	Accepted  bool
	Reason    DenyReason
	Expiry    time.Time
	Renewed   bool
	CircuitID uuid.UUID
}

func denied(r DenyReason) Decision {
	return Decision{Reason: r}
}

// Stats 服务端统计
type Stats struct {
	Reservations         int
	ActiveCircuits       int
	EstablishingCircuits int

	ReservationsAccepted uint64
	ReservationsDenied   uint64
	CircuitsEstablished  uint64
	CircuitsDenied       uint64
	BytesRelayed         int64
}
