package identify

import (
	"errors"
	"fmt"
	"io"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relay/pkg/types"
)

// MaxMessageSize 单条 identify 消息的最大长度
const MaxMessageSize = 8 << 10

// 字段编号，与 libp2p identify 保持一致
const (
	fieldPublicKey       protowire.Number = 1
	fieldListenAddrs     protowire.Number = 2
	fieldProtocols       protowire.Number = 3
	fieldObservedAddr    protowire.Number = 4
	fieldProtocolVersion protowire.Number = 5
	fieldAgentVersion    protowire.Number = 6
)

// Info 节点身份信息
type Info struct {
	// ProtocolVersion 协议版本
	ProtocolVersion string
	// AgentVersion 代理版本
	AgentVersion string
	// PublicKey libp2p 格式的序列化公钥
	PublicKey []byte
	// ListenAddrs 监听地址与外部地址
	ListenAddrs []ma.Multiaddr
	// ObservedAddr 发送方看到的接收方地址
	ObservedAddr ma.Multiaddr
	// Protocols 支持的协议
	Protocols []types.ProtocolID
}

// Marshal 编码
func (m *Info) Marshal() []byte {
	var b []byte
	if len(m.PublicKey) > 0 {
		b = appendBytes(b, fieldPublicKey, m.PublicKey)
	}
	for _, a := range m.ListenAddrs {
		b = appendBytes(b, fieldListenAddrs, a.Bytes())
	}
	for _, p := range m.Protocols {
		b = appendBytes(b, fieldProtocols, []byte(p))
	}
	if m.ObservedAddr != nil {
		b = appendBytes(b, fieldObservedAddr, m.ObservedAddr.Bytes())
	}
	if m.ProtocolVersion != "" {
		b = appendBytes(b, fieldProtocolVersion, []byte(m.ProtocolVersion))
	}
	if m.AgentVersion != "" {
		b = appendBytes(b, fieldAgentVersion, []byte(m.AgentVersion))
	}
	return b
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// Unmarshal 解码
//
// 无法解析的地址被跳过，未知字段被忽略。
func (m *Info) Unmarshal(b []byte) error {
	*m = Info{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldPublicKey:
			m.PublicKey = append([]byte(nil), v...)
		case fieldListenAddrs:
			if a, err := ma.NewMultiaddrBytes(v); err == nil {
				m.ListenAddrs = append(m.ListenAddrs, a)
			}
		case fieldProtocols:
			m.Protocols = append(m.Protocols, types.ProtocolID(v))
		case fieldObservedAddr:
			if a, err := ma.NewMultiaddrBytes(v); err == nil {
				m.ObservedAddr = a
			}
		case fieldProtocolVersion:
			m.ProtocolVersion = string(v)
		case fieldAgentVersion:
			m.AgentVersion = string(v)
		}
	}
	return nil
}

// writeMsg 写入带长度前缀的消息
func writeMsg(w io.Writer, m *Info) error {
	body := m.Marshal()
	if len(body) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	buf := append(varint.ToUvarint(uint64(len(body))), body...)
	_, err := w.Write(buf)
	return err
}

// readMsg 读取一条带长度前缀的消息
func readMsg(r io.Reader) (*Info, error) {
	size, err := varint.ReadUvarint(byteReader{r: r})
	if err != nil {
		if errors.Is(err, varint.ErrOverflow) || errors.Is(err, varint.ErrNotMinimal) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return nil, err
	}
	if size > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var m Info
	if err := m.Unmarshal(buf); err != nil {
		return nil, err
	}
	return &m, nil
}

type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var one [1]byte
	_, err := io.ReadFull(b.r, one[:])
	return one[0], err
}
