// Package protocolids 定义中继节点所有协议的唯一协议 ID 注册表。
//
// # 唯一真源原则
//
// 本包是协议 ID 的唯一权威来源。所有模块、测试、CLI 工具在需要协议 ID 时，
// 必须引用本包中的常量，禁止在其他位置定义字面量。
//
// # 协议命名
//
// 与 libp2p 保持线上兼容：
//   - 握手层: /noise, /yamux/1.0.0
//   - 系统协议: /ipfs/ping/1.0.0, /ipfs/id/1.0.0
//   - 中继协议: /libp2p/circuit/relay/0.2.0/{hop,stop}
package protocolids
