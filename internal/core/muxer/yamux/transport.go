package yamux

import (
	"errors"
	"fmt"
	"net"

	"github.com/hashicorp/yamux"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

// 确保实现接口
var _ pkgif.StreamMuxer = (*Transport)(nil)

// Transport yamux 多路复用工厂
type Transport struct {
	config *yamux.Config
}

// NewTransport 创建 yamux 工厂，cfg 为 nil 时使用默认配置
func NewTransport(cfg *yamux.Config) *Transport {
	if cfg == nil {
		cfg = DefaultYamuxConfig()
	}
	return &Transport{config: cfg}
}

// ID 返回协议 ID
func (t *Transport) ID() types.ProtocolID {
	return protocolids.Yamux
}

// NewConn 在安全连接之上建立 yamux 会话
func (t *Transport) NewConn(conn net.Conn, isServer bool) (pkgif.MuxedConn, error) {
	if conn == nil {
		return nil, errors.New("conn is nil")
	}

	var (
		session *yamux.Session
		err     error
	)
	if isServer {
		session, err = yamux.Server(conn, t.config)
	} else {
		session, err = yamux.Client(conn, t.config)
	}
	if err != nil {
		return nil, fmt.Errorf("create yamux session: %w", err)
	}
	return NewMuxer(session, isServer), nil
}
