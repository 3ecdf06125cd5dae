package interfaces

import (
	"context"
	"net"

	"github.com/dep2p/go-relay/pkg/types"
)

// SecureTransport 安全传输接口
type SecureTransport interface {
	// SecureInbound 作为响应方完成握手
	//
	// remotePeer 为空时不校验远程身份。
	SecureInbound(ctx context.Context, conn net.Conn, remotePeer types.NodeID) (SecureConn, error)

	// SecureOutbound 作为发起方完成握手
	SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.NodeID) (SecureConn, error)

	// ID 返回安全协议 ID
	ID() types.ProtocolID
}

// SecureConn 已认证的加密连接
type SecureConn interface {
	net.Conn

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.NodeID

	// RemotePeer 返回远程节点 ID
	RemotePeer() types.NodeID

	// RemotePublicKey 返回远程节点的序列化公钥
	RemotePublicKey() []byte
}
