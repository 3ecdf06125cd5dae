// Package client 实现中继客户端（circuit relay v2 的预留方与拨号方）
//
// Client 作为 swarm.NetworkBehaviour 运行：
//   - 预留：在中继上 RESERVE，并在剩余 1/4 有效期时自动续期
//   - STOP：仅在持有该中继的有效预留时接受入站电路
//   - 传输：Transport 拨号 <relay>/p2p-circuit/p2p/<target> 地址
//
// 电路流被包装为 manet.Conn，再经 upgrader 完成 Noise 握手与 yamux
// 会话，得到的连接与直连连接一样加入 Swarm 连接表，并标记为中继连接。
package client
