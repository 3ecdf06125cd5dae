package tcp

import (
	"context"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-relay/internal/core/upgrader"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// 确保实现接口
var _ pkgif.Listener = (*Listener)(nil)

// Listener TCP 监听器
//
// 原始连接在独立 goroutine 中升级，慢速握手不会阻塞其它入站连接。
type Listener struct {
	ln               manet.Listener
	upgrader         *upgrader.Upgrader
	handshakeTimeout time.Duration

	incoming chan pkgif.Connection
	ctx      context.Context
	cancel   context.CancelFunc

	errOnce sync.Once
	err     error
	done    chan struct{}
	wg      sync.WaitGroup
}

func newListener(ln manet.Listener, u *upgrader.Upgrader, handshakeTimeout time.Duration) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		ln:               ln,
		upgrader:         u,
		handshakeTimeout: handshakeTimeout,
		incoming:         make(chan pkgif.Connection),
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		raw, err := l.ln.Accept()
		if err != nil {
			l.fail(err)
			return
		}
		l.wg.Add(1)
		go l.upgrade(raw)
	}
}

func (l *Listener) upgrade(raw manet.Conn) {
	defer l.wg.Done()

	ctx, cancel := context.WithTimeout(l.ctx, l.handshakeTimeout)
	defer cancel()

	conn, err := l.upgrader.Upgrade(ctx, raw, pkgif.DirInbound, types.EmptyNodeID)
	if err != nil {
		log.Debug("入站连接升级失败", "remote", raw.RemoteMultiaddr(), "error", err)
		return
	}

	select {
	case l.incoming <- conn:
	case <-l.ctx.Done():
		_ = conn.Close()
	}
}

func (l *Listener) fail(err error) {
	l.errOnce.Do(func() {
		l.err = err
		close(l.done)
	})
}

// Accept 返回下一个已升级的入站连接
func (l *Listener) Accept() (pkgif.Connection, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.done:
		return nil, l.err
	}
}

// Close 关闭监听器并等待进行中的升级结束
func (l *Listener) Close() error {
	l.cancel()
	err := l.ln.Close()
	l.fail(ErrListenerClosed)
	l.wg.Wait()
	return err
}

// Multiaddr 返回实际监听地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.ln.Multiaddr()
}
