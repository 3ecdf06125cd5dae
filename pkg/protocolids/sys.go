package protocolids

import "github.com/dep2p/go-relay/pkg/types"

// ----------------------------------------------------------------------------
// 连接升级协议
// ----------------------------------------------------------------------------

// Noise Noise 安全握手协议
const Noise types.ProtocolID = "/noise"

// Yamux yamux 流多路复用协议
const Yamux types.ProtocolID = "/yamux/1.0.0"

// ----------------------------------------------------------------------------
// 系统协议
// ----------------------------------------------------------------------------

// Ping 存活检测协议
const Ping types.ProtocolID = "/ipfs/ping/1.0.0"

// Identify 身份识别协议
const Identify types.ProtocolID = "/ipfs/id/1.0.0"

// IdentifyProtocolVersion identify 中通告的协议版本
const IdentifyProtocolVersion = "/ipfs/0.1.0"

// ----------------------------------------------------------------------------
// 中继协议（circuit v2）
// ----------------------------------------------------------------------------

// RelayHop 客户端与中继之间的 HOP 协议（RESERVE / CONNECT）
const RelayHop types.ProtocolID = "/libp2p/circuit/relay/0.2.0/hop"

// RelayStop 中继与被预留节点之间的 STOP 协议
const RelayStop types.ProtocolID = "/libp2p/circuit/relay/0.2.0/stop"
