package interfaces

import (
	"context"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/pkg/types"
)

// Transport 定义传输层接口
//
// 传输层返回的连接已完成安全握手与多路复用升级。
// 直连传输（TCP）与中继传输（/p2p-circuit）实现同一接口，
// Swarm 按 CanDial 选择。
type Transport interface {
	// Dial 拨号连接到远程地址
	//
	// peer 为期望的远程节点，EmptyNodeID 表示不校验。
	Dial(ctx context.Context, raddr ma.Multiaddr, peer types.NodeID) (Connection, error)

	// CanDial 检查是否可以拨号到指定地址
	CanDial(addr ma.Multiaddr) bool

	// Listen 在指定地址上监听
	Listen(laddr ma.Multiaddr) (Listener, error)

	// Protocols 返回支持的 multiaddr 协议代码
	Protocols() []int

	// Close 关闭传输层
	Close() error
}

// Listener 监听器接口
type Listener interface {
	// Accept 接受一个已升级的入站连接
	Accept() (Connection, error)

	// Close 关闭监听器
	Close() error

	// Multiaddr 返回实际监听地址（端口 0 已被解析）
	Multiaddr() ma.Multiaddr
}

// Connection 已认证、已多路复用的连接
type Connection interface {
	// ID 返回本地连接序号
	ID() types.ConnID

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.NodeID

	// RemotePeer 返回远程节点 ID
	RemotePeer() types.NodeID

	// RemotePublicKey 返回远程节点的序列化公钥
	RemotePublicKey() []byte

	// LocalMultiaddr 返回本地地址
	LocalMultiaddr() ma.Multiaddr

	// RemoteMultiaddr 返回远程地址
	RemoteMultiaddr() ma.Multiaddr

	// OpenStream 打开新流并协商协议
	OpenStream(ctx context.Context, protocol types.ProtocolID) (Stream, error)

	// AcceptStream 接受入站流
	//
	// 返回的流尚未协商协议，由调用方完成 multistream-select。
	AcceptStream() (Stream, error)

	// Stat 返回连接统计
	Stat() ConnectionStat

	// IsRelayed 是否经由中继电路
	IsRelayed() bool

	// Close 关闭连接及其所有流
	Close() error

	// IsClosed 检查连接是否已关闭
	IsClosed() bool
}

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站
	DirInbound
	// DirOutbound 出站
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ConnectionStat 连接统计
type ConnectionStat struct {
	// Direction 连接方向
	Direction Direction

	// Opened 建立时间
	Opened time.Time

	// Relayed 是否中继连接
	Relayed bool

	// NumStreams 当前流数量
	NumStreams int
}
