package noise

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("security.noise")

// 确保实现接口
var _ pkgif.SecureTransport = (*Transport)(nil)

// Transport Noise 安全传输
type Transport struct {
	identity pkgif.Identity
}

// New 创建 Noise 安全传输
func New(id pkgif.Identity) (*Transport, error) {
	if id == nil {
		return nil, errors.New("identity is nil")
	}
	return &Transport{identity: id}, nil
}

// ID 返回协议 ID
func (t *Transport) ID() types.ProtocolID {
	return protocolids.Noise
}

// SecureInbound 作为响应方完成握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn, remotePeer types.NodeID) (pkgif.SecureConn, error) {
	return t.secure(ctx, conn, remotePeer, false)
}

// SecureOutbound 作为发起方完成握手
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.NodeID) (pkgif.SecureConn, error) {
	return t.secure(ctx, conn, remotePeer, true)
}

func (t *Transport) secure(ctx context.Context, conn net.Conn, remotePeer types.NodeID, initiator bool) (pkgif.SecureConn, error) {
	if conn == nil {
		return nil, errors.New("conn is nil")
	}

	// 握手期间服从 ctx 的截止时间与取消
	if d, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(d); err != nil {
			return nil, err
		}
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	secConn, err := performHandshake(conn, t.identity, remotePeer, initiator)
	if err != nil {
		log.Debug("Noise 握手失败",
			"initiator", initiator,
			"remotePeer", remotePeer.ShortString(),
			"error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(err, ctxErr)
		}
		return nil, err
	}

	log.Debug("Noise 握手成功",
		"initiator", initiator,
		"remotePeer", secConn.RemotePeer().ShortString())
	return secConn, nil
}
