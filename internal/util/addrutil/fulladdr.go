// Package addrutil 提供地址解析工具
//
// 完整地址（含 /p2p/<NodeID>）的解析与构建，以及中继电路地址
// /…/p2p/<relay>/p2p-circuit/p2p/<target> 的拆分。
package addrutil

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrMissingPeerID 缺少 /p2p/<NodeID> 后缀
	ErrMissingPeerID = errors.New("missing /p2p/<NodeID> suffix")

	// ErrInvalidPeerID 无效的 PeerID
	ErrInvalidPeerID = errors.New("invalid peer ID in address")

	// ErrPeerIDMismatch 地址中已包含不同的 PeerID
	ErrPeerIDMismatch = errors.New("address already contains different peer ID")

	// ErrNotRelayAddr 不是中继电路地址
	ErrNotRelayAddr = errors.New("not a relay circuit address")

	// ErrEmptyAddress 空地址
	ErrEmptyAddress = errors.New("empty address")
)

// ============================================================================
//                              完整地址解析
// ============================================================================

// SplitPeer 拆分地址末尾的 /p2p/<NodeID>
//
// 地址不以 /p2p 结尾时原样返回，NodeID 为 EmptyNodeID。
// 对中继电路地址，返回的是目标节点：
//
//	/ip4/.../p2p/<relay>/p2p-circuit/p2p/<target>
//	  → /ip4/.../p2p/<relay>/p2p-circuit, <target>
func SplitPeer(addr ma.Multiaddr) (ma.Multiaddr, types.NodeID, error) {
	if addr == nil {
		return nil, types.EmptyNodeID, ErrEmptyAddress
	}
	rest, last := ma.SplitLast(addr)
	if last == nil || last.Protocol().Code != ma.P_P2P {
		return addr, types.EmptyNodeID, nil
	}
	id, err := types.NodeIDFromBytes(last.RawValue())
	if err != nil {
		return nil, types.EmptyNodeID, fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	return rest, id, nil
}

// PeerFromAddr 返回地址末尾的 NodeID，没有或无效时返回 EmptyNodeID
func PeerFromAddr(addr ma.Multiaddr) types.NodeID {
	_, id, err := SplitPeer(addr)
	if err != nil {
		return types.EmptyNodeID
	}
	return id
}

// ParseFullAddr 解析必须携带 /p2p/<NodeID> 的地址字符串
//
// 用于命令行 --dial 等需要确定对端身份的场景。
func ParseFullAddr(s string) (ma.Multiaddr, types.NodeID, error) {
	if s == "" {
		return nil, types.EmptyNodeID, ErrEmptyAddress
	}
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, types.EmptyNodeID, err
	}
	_, id, err := SplitPeer(addr)
	if err != nil {
		return nil, types.EmptyNodeID, err
	}
	if id.IsEmpty() {
		return nil, types.EmptyNodeID, ErrMissingPeerID
	}
	return addr, id, nil
}

// WithPeer 在地址末尾追加 /p2p/<NodeID>
//
// 地址已带相同 NodeID 时原样返回，带不同 NodeID 时返回错误。
func WithPeer(addr ma.Multiaddr, id types.NodeID) (ma.Multiaddr, error) {
	if addr == nil {
		return nil, ErrEmptyAddress
	}
	if id.IsEmpty() {
		return nil, ErrInvalidPeerID
	}
	_, existing, err := SplitPeer(addr)
	if err != nil {
		return nil, err
	}
	if !existing.IsEmpty() {
		if existing != id {
			return nil, ErrPeerIDMismatch
		}
		return addr, nil
	}
	comp, err := ma.NewComponent("p2p", id.String())
	if err != nil {
		return nil, err
	}
	return addr.Encapsulate(comp), nil
}

// ============================================================================
//                              中继电路地址
// ============================================================================

// IsRelayAddr 检查地址是否包含 /p2p-circuit
func IsRelayAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	_, err := addr.ValueForProtocol(ma.P_CIRCUIT)
	return err == nil
}

// CircuitAddr 构建中继预留地址 <addr>/p2p/<relay>/p2p-circuit
func CircuitAddr(addr ma.Multiaddr, relay types.NodeID) (ma.Multiaddr, error) {
	withRelay, err := WithPeer(addr, relay)
	if err != nil {
		return nil, err
	}
	return withRelay.Encapsulate(ma.StringCast("/p2p-circuit")), nil
}

// ParseRelayAddr 拆分中继电路地址
//
// 返回：
//   - relayAddr: 中继节点的完整地址（含 /p2p/<relay>）
//   - relayID: 中继节点 ID
//   - targetID: 目标节点 ID，地址不带目标时为 EmptyNodeID
func ParseRelayAddr(addr ma.Multiaddr) (relayAddr ma.Multiaddr, relayID, targetID types.NodeID, err error) {
	if !IsRelayAddr(addr) {
		return nil, types.EmptyNodeID, types.EmptyNodeID, ErrNotRelayAddr
	}

	relayAddr, tail := splitAtCircuit(addr)
	if relayAddr == nil {
		return nil, types.EmptyNodeID, types.EmptyNodeID, ErrNotRelayAddr
	}

	_, relayID, err = SplitPeer(relayAddr)
	if err != nil {
		return nil, types.EmptyNodeID, types.EmptyNodeID, err
	}
	if relayID.IsEmpty() {
		return nil, types.EmptyNodeID, types.EmptyNodeID, fmt.Errorf("relay %w", ErrMissingPeerID)
	}

	if tail != nil {
		rest, id, err := SplitPeer(tail)
		if err != nil {
			return nil, types.EmptyNodeID, types.EmptyNodeID, err
		}
		if id.IsEmpty() || rest != nil {
			return nil, types.EmptyNodeID, types.EmptyNodeID, fmt.Errorf("%w: unexpected components after /p2p-circuit", ErrNotRelayAddr)
		}
		targetID = id
	}
	return relayAddr, relayID, targetID, nil
}

// splitAtCircuit 在第一个 /p2p-circuit 处拆分地址
//
// tail 为 /p2p-circuit 之后的部分，没有时为 nil。
func splitAtCircuit(addr ma.Multiaddr) (head, tail ma.Multiaddr) {
	head, circuit := ma.SplitFunc(addr, func(c ma.Component) bool {
		return c.Protocol().Code == ma.P_CIRCUIT
	})
	if circuit == nil {
		return nil, nil
	}
	_, tail = ma.SplitFirst(circuit)
	return head, tail
}
