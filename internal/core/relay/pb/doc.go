// Package pb 定义中继协议 (circuit relay v2) 的线上消息
//
// 消息与 libp2p circuit v2 的 protobuf 定义字段兼容，使用 protowire
// 手工编解码，每条消息前带 uvarint 长度前缀。
//
// HOP 协议 (/libp2p/circuit/relay/0.2.0/hop)：
//
//	RESERVE  客户端 → 中继    limit.duration 携带请求的预留时长
//	CONNECT  客户端 → 中继    peer 为目标节点
//	STATUS   中继 → 客户端    reservation / limit / status
//
// STOP 协议 (/libp2p/circuit/relay/0.2.0/stop)：
//
//	CONNECT  中继 → 目标      peer 为发起方，limit 为电路限制
//	STATUS   目标 → 中继
package pb
