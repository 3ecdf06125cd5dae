package types

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// ============================================================================
//                              NodeID - 节点标识
// ============================================================================

// NodeID 节点唯一标识符
// 由序列化公钥的 SHA256 摘要构成
//
// 外部表示格式：
//   - String(): Base58(sha2-256 multihash)，可直接作为 /p2p/<id> 组件
//   - ShortString(): 摘要部分的 Base58 前缀（日志简短标识）
type NodeID [32]byte

// EmptyNodeID 空节点ID
var EmptyNodeID NodeID

var (
	// ErrInvalidNodeID 无效的节点ID错误
	ErrInvalidNodeID = errors.New("invalid node ID")

	// ErrUnsupportedHash 节点ID使用了不支持的哈希算法
	ErrUnsupportedHash = fmt.Errorf("%w: unsupported multihash", ErrInvalidNodeID)
)

// NodeIDFromPublicKey 从序列化公钥派生 NodeID
func NodeIDFromPublicKey(marshalled []byte) NodeID {
	return NodeID(sha256.Sum256(marshalled))
}

// String 返回 NodeID 的 Base58 字符串表示
func (id NodeID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id.Multihash())
}

// ShortString 返回 NodeID 的短字符串表示
//
// 跳过公共的 "Qm" 前缀，取随后 8 个字符。
func (id NodeID) ShortString() string {
	s := id.String()
	if len(s) > 10 {
		return s[2:10]
	}
	return s
}

// Multihash 返回 sha2-256 multihash 编码
func (id NodeID) Multihash() []byte {
	b, err := mh.Encode(id[:], mh.SHA2_256)
	if err != nil {
		// 32 字节 sha2-256 摘要的编码不会失败
		panic(err)
	}
	return b
}

// Bytes 返回 NodeID 的字节切片
func (id NodeID) Bytes() []byte {
	return id[:]
}

// IsEmpty 检查 NodeID 是否为空
func (id NodeID) IsEmpty() bool {
	return id == EmptyNodeID
}

// NodeIDFromBytes 从 multihash 字节解析 NodeID
func NodeIDFromBytes(b []byte) (NodeID, error) {
	decoded, err := mh.Decode(b)
	if err != nil {
		return EmptyNodeID, ErrInvalidNodeID
	}
	if decoded.Code != mh.SHA2_256 || len(decoded.Digest) != 32 {
		return EmptyNodeID, ErrUnsupportedHash
	}
	var id NodeID
	copy(id[:], decoded.Digest)
	return id, nil
}

// ParseNodeID 从 Base58 字符串解析 NodeID
//
// 示例：
//
//	id, err := ParseNodeID("QmYyQSo1c1Ym7orWxLYvCrM2EmxFTANf8wXmmE7DWjhx5N")
func ParseNodeID(s string) (NodeID, error) {
	if s == "" {
		return EmptyNodeID, ErrInvalidNodeID
	}
	b, err := base58.Decode(s)
	if err != nil {
		return EmptyNodeID, ErrInvalidNodeID
	}
	return NodeIDFromBytes(b)
}

// MarshalText 实现 encoding.TextMarshaler
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 协议标识符
// 格式: /name/version，如 /ipfs/ping/1.0.0
type ProtocolID string

// String 返回协议ID字符串
func (p ProtocolID) String() string {
	return string(p)
}

// ============================================================================
//                              ConnID - 连接标识
// ============================================================================

// ConnID 本地连接序号，进程内单调递增
type ConnID uint64
