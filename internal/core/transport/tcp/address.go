package tcp

import (
	ma "github.com/multiformats/go-multiaddr"
)

// isTCPAddr 检查地址形如 /{ip4,ip6,dns,dns4,dns6}/<host>/tcp/<port>[/p2p/<id>]
func isTCPAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	protos := addr.Protocols()
	if len(protos) < 2 || len(protos) > 3 {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
	default:
		return false
	}
	if protos[1].Code != ma.P_TCP {
		return false
	}
	return len(protos) == 2 || protos[2].Code == ma.P_P2P
}
