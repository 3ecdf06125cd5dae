// Package identity 实现节点身份
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// 确保实现接口
var _ pkgif.Identity = (*Identity)(nil)

// ============================================================================
//                              Identity 实现
// ============================================================================

// Identity Ed25519 节点身份
type Identity struct {
	priv       ed25519.PrivateKey
	pub        ed25519.PublicKey
	marshalled []byte
	id         types.NodeID
}

// New 从私钥创建身份
func New(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPrivateKey, len(priv))
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrInvalidPrivateKey
	}
	marshalled := MarshalPublicKey(pub)
	return &Identity{
		priv:       priv,
		pub:        pub,
		marshalled: marshalled,
		id:         types.NodeIDFromPublicKey(marshalled),
	}, nil
}

// FromSeed 从单字节种子派生确定性身份
//
// 32 字节 Ed25519 种子的首字节为 seed，其余为 0。
// 相同的 seed 总是得到相同的 NodeID，便于部署固定地址的中继。
func FromSeed(seed uint8) *Identity {
	var buf [ed25519.SeedSize]byte
	buf[0] = seed
	id, err := New(ed25519.NewKeyFromSeed(buf[:]))
	if err != nil {
		// NewKeyFromSeed 总是返回合法长度的私钥
		panic(err)
	}
	return id
}

// Generate 生成随机身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToGenerateKey, err)
	}
	return New(priv)
}

// ID 返回 NodeID
func (i *Identity) ID() types.NodeID {
	return i.id
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.pub
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.priv
}

// MarshalPublicKey 返回序列化公钥
func (i *Identity) MarshalPublicKey() []byte {
	out := make([]byte, len(i.marshalled))
	copy(out, i.marshalled)
	return out
}

// Sign 对数据签名
func (i *Identity) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(i.priv, data), nil
}

// Verify 使用序列化公钥验证签名
func Verify(marshalledPub, data, sig []byte) (bool, error) {
	pub, err := UnmarshalPublicKey(marshalledPub)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}
