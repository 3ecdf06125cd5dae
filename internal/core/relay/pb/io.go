package pb

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// MaxMessageSize 单条消息的最大长度
const MaxMessageSize = 4096

// Message 可编解码的中继消息
type Message interface {
	Marshal() []byte
	Unmarshal([]byte) error
}

// WriteMsg 写入带长度前缀的消息
//
// 前缀与消息体合并为一次写入。
func WriteMsg(w io.Writer, m Message) error {
	body := m.Marshal()
	if len(body) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(body)))+len(body))
	buf = append(buf, varint.ToUvarint(uint64(len(body)))...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// ReadMsg 读取一条带长度前缀的消息
//
// 逐字节读取长度前缀，不会读过消息边界，读取后的流可直接用于转发。
func ReadMsg(r io.Reader, m Message) error {
	size, err := varint.ReadUvarint(byteReader{r: r})
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}
		if errors.Is(err, varint.ErrOverflow) || errors.Is(err, varint.ErrNotMinimal) {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return err
	}
	if size > MaxMessageSize {
		return ErrMessageTooLarge
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return m.Unmarshal(buf)
}

// byteReader 逐字节读取底层流
type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var one [1]byte
	_, err := io.ReadFull(b.r, one[:])
	return one[0], err
}
