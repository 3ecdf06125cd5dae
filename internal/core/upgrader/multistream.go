package upgrader

import (
	"context"
	"fmt"
	"io"
	"time"

	mss "github.com/multiformats/go-multistream"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// deadliner 可设置截止时间的读写对象
type deadliner interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// withNegotiateDeadline 在协商期间设置截止时间，返回恢复函数
func withNegotiateDeadline(ctx context.Context, rw deadliner, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := rw.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	return func() { _ = rw.SetDeadline(time.Time{}) }, nil
}

// negotiateSecurity 协商安全协议
//
// 服务端使用 MultistreamMuxer.Negotiate，客户端使用 SelectOneOf。
func (u *Upgrader) negotiateSecurity(ctx context.Context, conn deadliner, isServer bool) (pkgif.SecureTransport, error) {
	protos := make([]types.ProtocolID, len(u.securityTransports))
	for i, st := range u.securityTransports {
		protos[i] = st.ID()
	}

	selected, err := u.negotiate(ctx, conn, protos, isServer)
	if err != nil {
		return nil, err
	}
	for _, st := range u.securityTransports {
		if st.ID() == selected {
			return st, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNegotiationFailed, selected)
}

// negotiateMuxer 协商多路复用器
func (u *Upgrader) negotiateMuxer(ctx context.Context, conn deadliner, isServer bool) (pkgif.StreamMuxer, error) {
	protos := make([]types.ProtocolID, len(u.streamMuxers))
	for i, m := range u.streamMuxers {
		protos[i] = m.ID()
	}

	selected, err := u.negotiate(ctx, conn, protos, isServer)
	if err != nil {
		return nil, err
	}
	for _, m := range u.streamMuxers {
		if m.ID() == selected {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNegotiationFailed, selected)
}

func (u *Upgrader) negotiate(ctx context.Context, conn deadliner, protos []types.ProtocolID, isServer bool) (types.ProtocolID, error) {
	restore, err := withNegotiateDeadline(ctx, conn, u.negotiateTimeout)
	if err != nil {
		return "", err
	}
	defer restore()

	if isServer {
		muxer := mss.NewMultistreamMuxer[types.ProtocolID]()
		for _, p := range protos {
			muxer.AddHandler(p, nil)
		}
		selected, _, err := muxer.Negotiate(conn)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
		}
		return selected, nil
	}

	selected, err := mss.SelectOneOf(protos, conn)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	return selected, nil
}
