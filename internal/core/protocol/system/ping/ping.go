package ping

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
)

var log = logger.Logger("ping")

const (
	// PingSize Ping 消息大小（32 字节）
	PingSize = 32

	// HandlerIdleTimeout 应答端空闲超时，防止对端长时间占用流
	HandlerIdleTimeout = 60 * time.Second
)

// Ping 在连接上打开 ping 流并测量一次往返时间
//
// ctx 的截止时间同时作用于流的读写。
func Ping(ctx context.Context, conn pkgif.Connection) (time.Duration, error) {
	st, err := conn.OpenStream(ctx, protocolids.Ping)
	if err != nil {
		return 0, fmt.Errorf("open ping stream: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = st.Reset() })
	defer stop()

	rtt, err := pingOnce(st)
	if err != nil {
		_ = st.Reset()
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	_ = st.Close()
	return rtt, nil
}

// pingOnce 发送一次随机数据并校验回显
func pingOnce(rw io.ReadWriter) (time.Duration, error) {
	buf := make([]byte, PingSize)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := rw.Write(buf); err != nil {
		return 0, err
	}
	echo := make([]byte, PingSize)
	if _, err := io.ReadFull(rw, echo); err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if !bytes.Equal(buf, echo) {
		return 0, ErrDataMismatch
	}
	return rtt, nil
}

// echo 应答端：读取 32 字节并原样写回，直到流关闭或空闲超时
func echo(st pkgif.Stream) {
	defer st.Close()

	buf := make([]byte, PingSize)
	for {
		_ = st.SetReadDeadline(time.Now().Add(HandlerIdleTimeout))
		if _, err := io.ReadFull(st, buf); err != nil {
			return
		}
		if _, err := st.Write(buf); err != nil {
			return
		}
	}
}
