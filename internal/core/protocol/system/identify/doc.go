// Package identify 实现节点身份识别协议
//
// identify 协议用于在连接建立后交换节点信息，包括：
//   - 公钥（用于核对对端 NodeID）
//   - 支持的协议列表
//   - 监听地址与观测地址
//   - 协议版本与代理版本
//
// # 协议 ID
//
//	/ipfs/id/1.0.0
//
// # 流程
//
//  1. 连接建立后双方各自打开 identify 流
//  2. 被请求方写入本端信息后关闭流
//  3. 请求方校验公钥并缓存结果
//
// 消息采用 libp2p identify 的 protobuf 字段编号，带 varint 长度前缀。
// 入站直连上收到的观测地址作为外部地址候选报告给 Swarm。
package identify
