package swarm

import (
	ma "github.com/multiformats/go-multiaddr"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// Event Swarm 输出的事件
//
// 具体类型见本文件；各行为产生的事件以 BehaviourEvent 包装。
type Event interface {
	swarmEvent()
}

// ============================================================================
//                              监听事件
// ============================================================================

// NewListenAddr 新的监听地址（未指定地址已展开为具体网卡地址）
type NewListenAddr struct {
	Addr ma.Multiaddr
}

// ListenerClosed 监听器停止
type ListenerClosed struct {
	Addrs []ma.Multiaddr
	Err   error
}

// NewExternalAddrCandidate 对端观察到的本地外部地址
type NewExternalAddrCandidate struct {
	Addr ma.Multiaddr
}

// ============================================================================
//                              连接事件
// ============================================================================

// ConnectionEstablished 连接已建立
type ConnectionEstablished struct {
	Peer      types.NodeID
	ConnID    types.ConnID
	Endpoint  ma.Multiaddr
	Direction pkgif.Direction
	Relayed   bool

	// NumEstablished 与该节点的连接数（含本连接）
	NumEstablished int
}

// ConnectionClosed 连接已关闭
type ConnectionClosed struct {
	Peer     types.NodeID
	ConnID   types.ConnID
	Endpoint ma.Multiaddr
	Relayed  bool

	// NumEstablished 与该节点剩余的连接数
	NumEstablished int
}

// Dialing 开始拨号
type Dialing struct {
	Peer types.NodeID
	Addr ma.Multiaddr
}

// OutgoingConnectionError 出站连接失败
type OutgoingConnectionError struct {
	Peer types.NodeID
	Addr ma.Multiaddr
	Err  error
}

// IncomingConnectionError 入站连接被拒绝
type IncomingConnectionError struct {
	LocalAddr  ma.Multiaddr
	RemoteAddr ma.Multiaddr
	Err        error
}

// ============================================================================
//                              行为事件
// ============================================================================

// BehaviourEvent 行为产生的事件
type BehaviourEvent struct {
	// Behaviour 产生事件的行为名称
	Behaviour string
	Event     any
}

func (NewListenAddr) swarmEvent()            {}
func (ListenerClosed) swarmEvent()           {}
func (NewExternalAddrCandidate) swarmEvent() {}
func (ConnectionEstablished) swarmEvent()    {}
func (ConnectionClosed) swarmEvent()         {}
func (Dialing) swarmEvent()                  {}
func (OutgoingConnectionError) swarmEvent()  {}
func (IncomingConnectionError) swarmEvent()  {}
func (BehaviourEvent) swarmEvent()           {}

// Observer 事件观察者（指标采集）
//
// Observe 在事件循环中同步调用，不得阻塞。
type Observer interface {
	Observe(ev Event)
}
