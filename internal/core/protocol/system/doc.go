// Package system 实现系统协议
//
// system 下的协议以 swarm.NetworkBehaviour 的形式挂到 Swarm，
// 与中继协议共享连接，但使用各自独立的 yamux 流。
//
// # 系统协议
//
//   - identify: 节点身份识别协议
//   - ping: 存活检测协议
//
// # 协议 ID
//
//   - /ipfs/id/1.0.0
//   - /ipfs/ping/1.0.0
package system
