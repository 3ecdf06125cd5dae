package client

import (
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// 确保实现接口
var _ manet.Conn = (*circuitConn)(nil)

// circuitConn 将电路流包装为 manet.Conn，交给 upgrader 升级
type circuitConn struct {
	stream pkgif.Stream
	laddr  ma.Multiaddr
	raddr  ma.Multiaddr
}

func newCircuitConn(st pkgif.Stream, laddr, raddr ma.Multiaddr) *circuitConn {
	return &circuitConn{stream: st, laddr: laddr, raddr: raddr}
}

func (c *circuitConn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *circuitConn) Write(b []byte) (int, error) { return c.stream.Write(b) }

// Close 关闭两个方向，电路随之在中继上拆除
func (c *circuitConn) Close() error { return c.stream.Reset() }

func (c *circuitConn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *circuitConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *circuitConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }

func (c *circuitConn) LocalMultiaddr() ma.Multiaddr  { return c.laddr }
func (c *circuitConn) RemoteMultiaddr() ma.Multiaddr { return c.raddr }

func (c *circuitConn) LocalAddr() net.Addr  { return circuitAddr{c.laddr} }
func (c *circuitConn) RemoteAddr() net.Addr { return circuitAddr{c.raddr} }

// circuitAddr 中继地址的 net.Addr 表示
type circuitAddr struct {
	ma ma.Multiaddr
}

func (a circuitAddr) Network() string { return "p2p-circuit" }

func (a circuitAddr) String() string {
	if a.ma == nil {
		return ""
	}
	return a.ma.String()
}
