package identify

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/identity"
	"github.com/dep2p/go-relay/internal/core/swarm"
	"github.com/dep2p/go-relay/internal/util/addrutil"
	"github.com/dep2p/go-relay/internal/util/logger"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/protocolids"
	"github.com/dep2p/go-relay/pkg/types"
)

var log = logger.Logger("identify")

// Name 行为名称
const Name = "identify"

// 确保实现接口
var _ swarm.NetworkBehaviour = (*Behaviour)(nil)

// Config identify 配置
type Config struct {
	AgentVersion string
	Timeout      time.Duration
	CacheSize    int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		AgentVersion: config.DefaultAgentVersion,
		Timeout:      config.DefaultIdentifyTimeout,
		CacheSize:    config.DefaultIdentifyCacheSize,
	}
}

// ConfigFromUnified 从统一配置构建
func ConfigFromUnified(c *config.Config) Config {
	if c == nil {
		return DefaultConfig()
	}
	return Config{
		AgentVersion: c.Identify.AgentVersion,
		Timeout:      c.Identify.Timeout.Std(),
		CacheSize:    c.Identify.CacheSize,
	}
}

// ============================================================================
//                              事件
// ============================================================================

// Received 收到并校验了对端信息
type Received struct {
	Peer   types.NodeID
	ConnID types.ConnID
	Info   Info
}

// Sent 向对端发送了本端信息
type Sent struct {
	Peer   types.NodeID
	ConnID types.ConnID
}

// Error 交换失败
type Error struct {
	Peer   types.NodeID
	ConnID types.ConnID
	Err    error
}

// ============================================================================
//                              Behaviour
// ============================================================================

// msg 后台交换结果
type msg struct {
	conn     pkgif.Connection
	info     *Info
	outbound bool
	err      error
}

// Behaviour 在每条新连接上交换身份信息
type Behaviour struct {
	cfg       Config
	publicKey []byte
	host      swarm.Host
	cache     *lru.Cache[types.NodeID, Info]

	out []swarm.ToSwarm

	inbox  *swarm.Mailbox[msg]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建 identify 行为
func New(cfg Config, id pkgif.Identity) (*Behaviour, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = config.DefaultIdentifyCacheSize
	}
	cache, err := lru.New[types.NodeID, Info](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create identify cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Behaviour{
		cfg:       cfg,
		publicKey: id.MarshalPublicKey(),
		cache:     cache,
		inbox:     swarm.NewMailbox[msg](),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Name 返回行为名称
func (b *Behaviour) Name() string { return Name }

// Protocols 返回处理的入站协议
func (b *Behaviour) Protocols() []types.ProtocolID {
	return []types.ProtocolID{protocolids.Identify}
}

// Attach 绑定 Swarm
func (b *Behaviour) Attach(h swarm.Host) {
	b.host = h
	b.inbox.SetWaker(h.Wake)
}

// OnConnectionEstablished 向对端请求身份信息
func (b *Behaviour) OnConnectionEstablished(c pkgif.Connection) {
	if b.ctx.Err() != nil {
		return
	}
	b.spawn(func() {
		info, err := b.request(c)
		b.inbox.Post(msg{conn: c, info: info, outbound: true, err: err})
	})
}

// OnConnectionClosed 缓存保留，直到被淘汰
func (b *Behaviour) OnConnectionClosed(pkgif.Connection) {}

// HandleInboundStream 写入本端信息
//
// 信息在事件循环中生成，写入在后台完成。
func (b *Behaviour) HandleInboundStream(st pkgif.Stream) {
	info := b.localInfo(st.Conn())
	b.spawn(func() {
		err := b.respond(st, info)
		b.inbox.Post(msg{conn: st.Conn(), err: err})
	})
}

// Tick 无定时任务
func (b *Behaviour) Tick(time.Time) {}

// Poll 处理交换结果
func (b *Behaviour) Poll(budget int) ([]swarm.ToSwarm, bool) {
	msgs, more := b.inbox.Drain(budget)
	for _, m := range msgs {
		b.handle(m)
	}
	out := b.out
	b.out = nil
	return out, more
}

// Close 停止后台交换
func (b *Behaviour) Close() error {
	b.cancel()
	b.wg.Wait()
	b.inbox.Drain(0)
	return nil
}

// Info 返回缓存的对端信息（任意 goroutine）
func (b *Behaviour) Info(peer types.NodeID) (Info, bool) {
	return b.cache.Get(peer)
}

// ============================================================================
//                              交换
// ============================================================================

// localInfo 生成发给 conn 对端的本端信息（仅事件循环）
func (b *Behaviour) localInfo(c pkgif.Connection) *Info {
	info := &Info{
		ProtocolVersion: protocolids.IdentifyProtocolVersion,
		AgentVersion:    b.cfg.AgentVersion,
		PublicKey:       b.publicKey,
		Protocols:       b.host.Protocols(),
	}
	for _, a := range append(b.host.ListenAddrs(), b.host.ExternalAddrs()...) {
		if !containsAddr(info.ListenAddrs, a) {
			info.ListenAddrs = append(info.ListenAddrs, a)
		}
	}
	if !c.IsRelayed() {
		info.ObservedAddr = c.RemoteMultiaddr()
	}
	return info
}

func (b *Behaviour) respond(st pkgif.Stream, info *Info) error {
	_ = st.SetDeadline(time.Now().Add(b.cfg.Timeout))
	if err := writeMsg(st, info); err != nil {
		_ = st.Reset()
		return fmt.Errorf("write identify: %w", err)
	}
	return st.Close()
}

// request 打开 identify 流并读取对端信息（后台 goroutine）
func (b *Behaviour) request(c pkgif.Connection) (*Info, error) {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Timeout)
	defer cancel()

	st, err := c.OpenStream(ctx, protocolids.Identify)
	if err != nil {
		return nil, fmt.Errorf("open identify stream: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(dl)
	}
	info, err := readMsg(st)
	if err != nil {
		_ = st.Reset()
		return nil, fmt.Errorf("read identify: %w", err)
	}
	_ = st.Close()

	if err := verify(c.RemotePeer(), info); err != nil {
		return nil, err
	}
	return info, nil
}

// verify 核对公钥与对端 NodeID
func verify(peer types.NodeID, info *Info) error {
	if len(info.PublicKey) == 0 {
		return ErrMissingPublicKey
	}
	id, err := identity.NodeIDFromMarshalledKey(info.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if id != peer {
		return fmt.Errorf("%w: got %s, want %s", ErrPeerIDMismatch, id.ShortString(), peer.ShortString())
	}
	return nil
}

func (b *Behaviour) handle(m msg) {
	peer, connID := m.conn.RemotePeer(), m.conn.ID()
	if m.err != nil {
		log.Debug("identify 失败", "peer", peer.ShortString(), "conn", connID, "error", m.err)
		b.emit(Error{Peer: peer, ConnID: connID, Err: m.err})
		return
	}
	if !m.outbound {
		b.emit(Sent{Peer: peer, ConnID: connID})
		return
	}

	info := *m.info
	b.cache.Add(peer, info)
	log.Debug("收到 identify",
		"peer", peer.ShortString(),
		"agent", info.AgentVersion,
		"addrs", len(info.ListenAddrs),
		"protocols", len(info.Protocols))
	b.emit(Received{Peer: peer, ConnID: connID, Info: info})

	// 只有入站直连上的观测地址对应对端实际拨入的地址
	if usableObserved(m.conn, info.ObservedAddr) {
		b.out = append(b.out, swarm.ExternalAddr{Addr: info.ObservedAddr})
	}
}

func usableObserved(c pkgif.Connection, addr ma.Multiaddr) bool {
	if addr == nil || c.IsRelayed() || addrutil.IsRelayAddr(addr) {
		return false
	}
	return c.Stat().Direction == pkgif.DirInbound
}

func (b *Behaviour) emit(ev any) {
	b.out = append(b.out, swarm.GenerateEvent{Event: ev})
}

func (b *Behaviour) spawn(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

func containsAddr(list []ma.Multiaddr, a ma.Multiaddr) bool {
	for _, x := range list {
		if x.Equal(a) {
			return true
		}
	}
	return false
}
