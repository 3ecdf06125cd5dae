package pb

import (
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relay/pkg/types"
)

// ============================================================================
//                              消息结构
// ============================================================================

// Peer 节点信息
type Peer struct {
	ID    types.NodeID
	Addrs []ma.Multiaddr
}

// Reservation 预留凭据
type Reservation struct {
	// Expire 过期时间（线上为 Unix 秒）
	Expire time.Time
	// Addrs 中继地址，形如 <relay-addr>/p2p/<relay>/p2p-circuit
	Addrs   []ma.Multiaddr
	Voucher []byte
}

// Limit 电路限制
//
// 零值字段表示不限制。
type Limit struct {
	// Duration 最长持续时间（线上为秒）
	Duration time.Duration
	// Data 每个方向的最大转发字节数
	Data uint64
}

// HopMessage HOP 协议消息
type HopMessage struct {
	Type        HopType
	Peer        *Peer
	Reservation *Reservation
	Limit       *Limit
	Status      Status
}

// StopMessage STOP 协议消息
type StopMessage struct {
	Type   StopType
	Peer   *Peer
	Limit  *Limit
	Status Status
}

// 字段编号
const (
	hopType        protowire.Number = 1
	hopPeer        protowire.Number = 2
	hopReservation protowire.Number = 3
	hopLimit       protowire.Number = 4
	hopStatus      protowire.Number = 5

	stopType   protowire.Number = 1
	stopPeer   protowire.Number = 2
	stopLimit  protowire.Number = 3
	stopStatus protowire.Number = 4

	peerID    protowire.Number = 1
	peerAddrs protowire.Number = 2

	resvExpire  protowire.Number = 1
	resvAddrs   protowire.Number = 2
	resvVoucher protowire.Number = 3

	limitDuration protowire.Number = 1
	limitData     protowire.Number = 2
)

// ============================================================================
//                              编码
// ============================================================================

// Marshal 编码 HOP 消息
func (m *HopMessage) Marshal() []byte {
	var b []byte
	b = appendVarint(b, hopType, uint64(m.Type))
	if m.Peer != nil {
		b = appendMessage(b, hopPeer, m.Peer.marshal())
	}
	if m.Reservation != nil {
		b = appendMessage(b, hopReservation, m.Reservation.marshal())
	}
	if m.Limit != nil {
		b = appendMessage(b, hopLimit, m.Limit.marshal())
	}
	if m.Status != StatusUnused {
		b = appendVarint(b, hopStatus, uint64(m.Status))
	}
	return b
}

// Marshal 编码 STOP 消息
func (m *StopMessage) Marshal() []byte {
	var b []byte
	b = appendVarint(b, stopType, uint64(m.Type))
	if m.Peer != nil {
		b = appendMessage(b, stopPeer, m.Peer.marshal())
	}
	if m.Limit != nil {
		b = appendMessage(b, stopLimit, m.Limit.marshal())
	}
	if m.Status != StatusUnused {
		b = appendVarint(b, stopStatus, uint64(m.Status))
	}
	return b
}

func (p *Peer) marshal() []byte {
	var b []byte
	b = appendMessage(b, peerID, p.ID.Multihash())
	for _, a := range p.Addrs {
		b = appendMessage(b, peerAddrs, a.Bytes())
	}
	return b
}

func (r *Reservation) marshal() []byte {
	var b []byte
	var expire uint64
	if !r.Expire.IsZero() && r.Expire.Unix() > 0 {
		expire = uint64(r.Expire.Unix())
	}
	b = appendVarint(b, resvExpire, expire)
	for _, a := range r.Addrs {
		b = appendMessage(b, resvAddrs, a.Bytes())
	}
	if len(r.Voucher) > 0 {
		b = appendMessage(b, resvVoucher, r.Voucher)
	}
	return b
}

func (l *Limit) marshal() []byte {
	var b []byte
	if secs := uint64(l.Duration / time.Second); secs > 0 {
		b = appendVarint(b, limitDuration, secs)
	}
	if l.Data > 0 {
		b = appendVarint(b, limitData, l.Data)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// ============================================================================
//                              解码
// ============================================================================

// Unmarshal 解码 HOP 消息
func (m *HopMessage) Unmarshal(b []byte) error {
	*m = HopMessage{}
	var hasType bool
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == hopType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Type = HopType(v)
			hasType = true
			return n, nil
		case num == hopPeer && typ == protowire.BytesType:
			m.Peer = &Peer{}
			return consumeMessage(b, m.Peer.unmarshal)
		case num == hopReservation && typ == protowire.BytesType:
			m.Reservation = &Reservation{}
			return consumeMessage(b, m.Reservation.unmarshal)
		case num == hopLimit && typ == protowire.BytesType:
			m.Limit = &Limit{}
			return consumeMessage(b, m.Limit.unmarshal)
		case num == hopStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Status = Status(v)
			return n, nil
		}
		return skip, nil
	})
	if err != nil {
		return err
	}
	if !hasType {
		return fmt.Errorf("%w: missing hop type", ErrMalformedMessage)
	}
	return nil
}

// Unmarshal 解码 STOP 消息
func (m *StopMessage) Unmarshal(b []byte) error {
	*m = StopMessage{}
	var hasType bool
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == stopType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Type = StopType(v)
			hasType = true
			return n, nil
		case num == stopPeer && typ == protowire.BytesType:
			m.Peer = &Peer{}
			return consumeMessage(b, m.Peer.unmarshal)
		case num == stopLimit && typ == protowire.BytesType:
			m.Limit = &Limit{}
			return consumeMessage(b, m.Limit.unmarshal)
		case num == stopStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Status = Status(v)
			return n, nil
		}
		return skip, nil
	})
	if err != nil {
		return err
	}
	if !hasType {
		return fmt.Errorf("%w: missing stop type", ErrMalformedMessage)
	}
	return nil
}

func (p *Peer) unmarshal(b []byte) error {
	var hasID bool
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip, nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		switch num {
		case peerID:
			id, err := types.NodeIDFromBytes(v)
			if err != nil {
				return 0, fmt.Errorf("%w: peer id: %v", ErrMalformedMessage, err)
			}
			p.ID = id
			hasID = true
		case peerAddrs:
			// 无法解析的地址直接忽略
			if a, err := ma.NewMultiaddrBytes(v); err == nil {
				p.Addrs = append(p.Addrs, a)
			}
		}
		return n, nil
	})
	if err != nil {
		return err
	}
	if !hasID {
		return fmt.Errorf("%w: missing peer id", ErrMalformedMessage)
	}
	return nil
}

func (r *Reservation) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == resvExpire && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 && v > 0 {
				r.Expire = time.Unix(int64(v), 0)
			}
			return n, nil
		case num == resvAddrs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				if a, err := ma.NewMultiaddrBytes(v); err == nil {
					r.Addrs = append(r.Addrs, a)
				}
			}
			return n, nil
		case num == resvVoucher && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				r.Voucher = append([]byte(nil), v...)
			}
			return n, nil
		}
		return skip, nil
	})
}

func (l *Limit) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return skip, nil
		}
		v, n := protowire.ConsumeVarint(b)
		switch num {
		case limitDuration:
			l.Duration = time.Duration(uint32(v)) * time.Second
		case limitData:
			l.Data = v
		}
		return n, nil
	})
}

// skip 表示字段未识别，由 walk 按线上类型跳过
const skip = -1 << 30

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk 依次遍历 b 中的字段
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == skip {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeMessage(b []byte, unmarshal func([]byte) error) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	if err := unmarshal(v); err != nil {
		return 0, err
	}
	return n, nil
}
