package identity

import (
	"crypto/ed25519"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relay/pkg/types"
)

// keyTypeEd25519 libp2p crypto.pb 中的 Ed25519 类型值
const keyTypeEd25519 = 1

// protobuf 字段号
//
//	message PublicKey {
//	  required KeyType Type = 1;
//	  required bytes Data = 2;
//	}
const (
	fieldKeyType protowire.Number = 1
	fieldKeyData protowire.Number = 2
)

// MarshalPublicKey 序列化 Ed25519 公钥
//
// 输出与 libp2p crypto.PublicKey protobuf 兼容，NodeID 由它派生。
func MarshalPublicKey(pub ed25519.PublicKey) []byte {
	b := make([]byte, 0, 4+len(pub))
	b = protowire.AppendTag(b, fieldKeyType, protowire.VarintType)
	b = protowire.AppendVarint(b, keyTypeEd25519)
	b = protowire.AppendTag(b, fieldKeyData, protowire.BytesType)
	b = protowire.AppendBytes(b, pub)
	return b
}

// UnmarshalPublicKey 解析序列化公钥
func UnmarshalPublicKey(data []byte) (ed25519.PublicKey, error) {
	var (
		keyType uint64
		hasType bool
		raw     []byte
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrInvalidPublicKey
		}
		data = data[n:]

		switch {
		case num == fieldKeyType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, ErrInvalidPublicKey
			}
			keyType, hasType = v, true
			data = data[m:]
		case num == fieldKeyData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, ErrInvalidPublicKey
			}
			raw = v
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, ErrInvalidPublicKey
			}
			data = data[m:]
		}
	}

	if !hasType || keyType != keyTypeEd25519 {
		return nil, ErrUnsupportedKeyType
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return ed25519.PublicKey(append([]byte(nil), raw...)), nil
}

// NodeIDFromMarshalledKey 校验序列化公钥并派生 NodeID
func NodeIDFromMarshalledKey(marshalled []byte) (types.NodeID, error) {
	if _, err := UnmarshalPublicKey(marshalled); err != nil {
		return types.EmptyNodeID, err
	}
	return types.NodeIDFromPublicKey(marshalled), nil
}
