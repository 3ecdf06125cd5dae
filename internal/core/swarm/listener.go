package swarm

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-relay/internal/util/addrutil"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// maxExternalAddrs 保留的外部地址数量上限
const maxExternalAddrs = 8

// msgListenerAdded 监听器已绑定
type msgListenerAdded struct {
	ln    pkgif.Listener
	addrs []ma.Multiaddr
}

// msgListenerClosed 监听器的 Accept 返回错误
type msgListenerClosed struct {
	ln  pkgif.Listener
	err error
}

func (m msgListenerAdded) discard()  { _ = m.ln.Close() }
func (m msgListenerClosed) discard() {}

// Listen 在地址上监听（任意 goroutine）
//
// 绑定失败时同步返回错误。0.0.0.0 / :: 展开为各网卡地址，
// 每个地址在事件循环中以 NewListenAddr 事件报告。
func (s *Swarm) Listen(addr ma.Multiaddr) ([]ma.Multiaddr, error) {
	var t pkgif.Transport
	for _, candidate := range s.transports {
		if !handlesCircuit(candidate) && candidate.CanDial(addr) {
			t = candidate
			break
		}
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrListenFailed, ErrNoTransport, addr)
	}

	ln, err := t.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListenFailed, err)
	}

	addrs, err := addrutil.ExpandUnspecified(ln.Multiaddr())
	if err != nil {
		log.Warn("无法展开监听地址", "addr", ln.Multiaddr(), "error", err)
		addrs = []ma.Multiaddr{ln.Multiaddr()}
	}

	s.lnMu.Lock()
	if s.closed {
		s.lnMu.Unlock()
		_ = ln.Close()
		return nil, ErrSwarmClosed
	}
	s.openListeners[ln] = struct{}{}
	s.wg.Add(1)
	s.lnMu.Unlock()

	s.inbox.Post(msgListenerAdded{ln: ln, addrs: addrs})
	go s.acceptLoop(ln)

	log.Info("开始监听", "addr", ln.Multiaddr(), "expanded", len(addrs))
	return addrs, nil
}

// acceptLoop 接受入站连接，直到监听器关闭
func (s *Swarm) acceptLoop(ln pkgif.Listener) {
	defer s.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			s.inbox.Post(msgListenerClosed{ln: ln, err: err})
			return
		}
		s.inbox.Post(msgConnAdded{conn: c})
	}
}

func (s *Swarm) handleListenerAdded(m msgListenerAdded) {
	s.listeners[m.ln] = m.addrs
	s.listenAddrs = append(s.listenAddrs, m.addrs...)
	for _, a := range m.addrs {
		s.emit(NewListenAddr{Addr: a})
	}
}

func (s *Swarm) handleListenerClosed(m msgListenerClosed) {
	addrs, ok := s.listeners[m.ln]
	if !ok {
		return
	}
	delete(s.listeners, m.ln)

	s.lnMu.Lock()
	delete(s.openListeners, m.ln)
	s.lnMu.Unlock()
	_ = m.ln.Close()

	kept := s.listenAddrs[:0]
	for _, a := range s.listenAddrs {
		if !containsAddr(addrs, a) {
			kept = append(kept, a)
		}
	}
	s.listenAddrs = kept

	err := m.err
	if errors.Is(err, ErrSwarmClosed) {
		err = nil
	}
	log.Info("监听器已关闭", "addrs", addrs, "error", err)
	s.emit(ListenerClosed{Addrs: addrs, Err: err})
}

// addExternalAddr 记录外部地址候选
func (s *Swarm) addExternalAddr(addr ma.Multiaddr) {
	if addr == nil || containsAddr(s.externalAddrs, addr) {
		return
	}
	if len(s.externalAddrs) >= maxExternalAddrs {
		s.externalAddrs = s.externalAddrs[1:]
	}
	s.externalAddrs = append(s.externalAddrs, addr)
	log.Debug("新的外部地址候选", "addr", addr)
	s.emit(NewExternalAddrCandidate{Addr: addr})
}

func containsAddr(list []ma.Multiaddr, addr ma.Multiaddr) bool {
	for _, a := range list {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}
