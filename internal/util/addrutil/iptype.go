package addrutil

import (
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ============================================================================
//                              IP 类型判断工具
// ============================================================================

// AddrType 返回地址类型描述
//
// 返回值：relay、dns、loopback、private、public、unknown
func AddrType(addr ma.Multiaddr) string {
	if addr == nil {
		return "unknown"
	}
	if IsRelayAddr(addr) {
		return "relay"
	}
	first, _ := ma.SplitFirst(addr)
	if first == nil {
		return "unknown"
	}
	switch first.Protocol().Code {
	case ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_DNSADDR:
		return "dns"
	}
	switch {
	case manet.IsIPLoopback(addr):
		return "loopback"
	case manet.IsPrivateAddr(addr):
		return "private"
	case manet.IsPublicAddr(addr):
		return "public"
	}
	return "unknown"
}

// ExpandUnspecified 将 0.0.0.0 / :: 监听地址展开为各网卡地址
//
// 已是具体地址时原样返回。链路本地 IPv6 地址被跳过。
func ExpandUnspecified(addr ma.Multiaddr) ([]ma.Multiaddr, error) {
	first, _ := ma.SplitFirst(addr)
	if first == nil || !manet.IsIPUnspecified(first) {
		return []ma.Multiaddr{addr}, nil
	}

	ifaces, err := manet.InterfaceMultiaddrs()
	if err != nil {
		return nil, err
	}
	usable := ifaces[:0]
	for _, a := range ifaces {
		if !manet.IsIP6LinkLocal(a) {
			usable = append(usable, a)
		}
	}
	return manet.ResolveUnspecifiedAddress(addr, usable)
}
