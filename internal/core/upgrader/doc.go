// Package upgrader 实现连接升级
//
// 原始字节流经过两次 multistream-select 协商被升级为多路复用连接：
//
//	raw conn ──/noise──▶ SecureConn ──/yamux/1.0.0──▶ MuxedConn ──▶ Conn
//
// 出站流由 Conn.OpenStream 以 SelectProtoOrFail 协商协议；
// 入站流由 Conn.AcceptStream 原样返回，交给 Swarm 统一协商和路由。
//
// 中继电路上的端到端连接走同一条升级路径，远程地址中的
// /p2p-circuit 使连接被标记为中继连接。
package upgrader
