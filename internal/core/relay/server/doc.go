// Package server 实现中继服务端（circuit relay v2 HOP 协议）
//
// Server 作为 swarm.NetworkBehaviour 运行在事件循环中，负责：
//   - 预留：接受 RESERVE 请求，按策略授予带过期时间的预留
//   - 电路：为 CONNECT 请求向目标节点打开 STOP 流，双方应答后双向转发
//   - 过期：在 Tick 中处理预留过期、电路建立超时、时长上限与空闲超时
//
// 预留表与电路表只在事件循环中访问。读写流的 I/O 在独立 goroutine 中
// 完成，结果投递到 Mailbox，由 Poll 处理。
//
// # 状态机
//
//	Reservation: Pending → Active → Expired
//	                 └────→ Denied
//	Circuit:     Requested → Establishing → Active → Closed
//	                              │            └──→ TimedOut
//	                              └──→ Denied / TimedOut
package server
