package interfaces

import (
	"crypto/ed25519"

	"github.com/dep2p/go-relay/pkg/types"
)

// Identity 节点身份
//
// 持有 Ed25519 密钥对，NodeID 由序列化公钥派生。
type Identity interface {
	// ID 返回本地 NodeID
	ID() types.NodeID

	// PublicKey 返回 Ed25519 公钥
	PublicKey() ed25519.PublicKey

	// PrivateKey 返回 Ed25519 私钥
	PrivateKey() ed25519.PrivateKey

	// MarshalPublicKey 返回 libp2p 格式的序列化公钥
	MarshalPublicKey() []byte

	// Sign 对数据签名
	Sign(data []byte) ([]byte, error)
}
