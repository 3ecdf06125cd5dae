// Package tcp 实现 TCP 传输
//
// 拨号和监听得到的原始 TCP 连接经 upgrader 完成 Noise 握手与
// yamux 协商后，以 pkgif.Connection 形式交给 Swarm。
//
// 支持的地址：
//
//	/ip4/<addr>/tcp/<port>[/p2p/<id>]
//	/ip6/<addr>/tcp/<port>[/p2p/<id>]
//	/dns{,4,6}/<host>/tcp/<port>[/p2p/<id>]
package tcp
