package swarm

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// ============================================================================
//                              NetworkBehaviour
// ============================================================================

// NetworkBehaviour 挂在 Swarm 事件循环上的协议行为
//
// 除注明外，所有方法都在事件循环 goroutine 中调用，实现不需要加锁，
// 但也不得阻塞：网络 I/O 放到独立 goroutine，结果投递到行为自己的
// Mailbox，在下一次 Poll 中处理。
type NetworkBehaviour interface {
	// Name 行为名称，用于事件标注与日志
	Name() string

	// Protocols 本行为处理的入站协议
	Protocols() []types.ProtocolID

	// Attach 在 Swarm 创建时调用一次
	Attach(h Host)

	// OnConnectionEstablished 新连接加入连接表
	OnConnectionEstablished(conn pkgif.Connection)

	// OnConnectionClosed 连接从连接表移除
	OnConnectionClosed(conn pkgif.Connection)

	// HandleInboundStream 处理已协商协议的入站流
	HandleInboundStream(s pkgif.Stream)

	// Tick 定时驱动（超时检查等）
	Tick(now time.Time)

	// Poll 处理至多 budget 条积压消息并返回产生的动作
	//
	// more 为 true 表示仍有积压，Swarm 会在本轮之后再次轮询。
	Poll(budget int) (actions []ToSwarm, more bool)
}

// Host 行为可见的 Swarm 能力
type Host interface {
	// LocalPeer 本地节点 ID（任意 goroutine）
	LocalPeer() types.NodeID

	// Clock 时钟（任意 goroutine）
	Clock() clock.Clock

	// Wake 唤醒事件循环（任意 goroutine）
	Wake()

	// Connection 返回与 peer 的首选连接，没有时返回 nil（仅事件循环）
	Connection(peer types.NodeID) pkgif.Connection

	// ConnectionByID 按序号查找连接（仅事件循环）
	ConnectionByID(id types.ConnID) pkgif.Connection

	// ListenAddrs 当前监听地址（仅事件循环）
	ListenAddrs() []ma.Multiaddr

	// ExternalAddrs 已确认的外部地址（仅事件循环）
	ExternalAddrs() []ma.Multiaddr

	// Protocols 行为注册的全部入站协议，按字典序（任意 goroutine）
	Protocols() []types.ProtocolID

	// Connect 连接到地址并等待连接加入连接表
	//
	// 已有到目标节点的连接时直接复用。不得在事件循环中调用。
	Connect(ctx context.Context, addr ma.Multiaddr) (pkgif.Connection, error)

	// Exec 在事件循环中执行 fn 并等待其完成。不得在事件循环中调用。
	Exec(ctx context.Context, fn func()) error
}

// ============================================================================
//                              ToSwarm 动作
// ============================================================================

// ToSwarm 行为请求 Swarm 执行的动作
type ToSwarm interface {
	toSwarm()
}

// GenerateEvent 向外输出事件（以 BehaviourEvent 包装）
type GenerateEvent struct {
	Event any
}

// Dial 发起拨号，结果以连接事件报告
type Dial struct {
	Addr ma.Multiaddr
	Peer types.NodeID
}

// CloseConnection 关闭连接
//
// ConnID 为 0 时关闭与 Peer 的全部连接。
type CloseConnection struct {
	Peer   types.NodeID
	ConnID types.ConnID
}

// AddConnection 将行为建立的连接（如入站中继电路）加入连接表
type AddConnection struct {
	Conn pkgif.Connection
}

// ExternalAddr 报告外部地址候选
type ExternalAddr struct {
	Addr ma.Multiaddr
}

func (GenerateEvent) toSwarm()   {}
func (Dial) toSwarm()            {}
func (CloseConnection) toSwarm() {}
func (AddConnection) toSwarm()   {}
func (ExternalAddr) toSwarm()    {}
