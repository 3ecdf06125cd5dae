// Package interfaces 定义中继节点各层之间共享的接口
//
// 扁平命名，一个接口文件对应一个实现目录：
//   - identity.go   - 节点身份（internal/core/identity）
//   - transport.go  - 传输层与连接（internal/core/transport/tcp, internal/core/relay/client）
//   - stream.go     - 协议流（internal/core/upgrader）
//   - security.go   - 安全层（internal/core/security/noise）
//   - muxer.go      - 多路复用（internal/core/muxer/yamux）
//
// 事件循环相关的类型（NetworkBehaviour、ToSwarm、Event）定义在
// internal/core/swarm 中，由各个行为实现直接引用。
package interfaces
