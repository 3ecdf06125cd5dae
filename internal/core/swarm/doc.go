// Package swarm 实现连接群管理与行为调度
//
// Swarm 持有到各节点的已升级连接、监听器以及一组 NetworkBehaviour
// （中继服务端、中继客户端、ping、identify），由单个事件循环驱动。
//
// # 事件循环
//
// 每轮循环：
//
//  1. 处理内部消息：新连接、连接关闭、入站流、拨号结果、监听器变化
//  2. 从轮换的起点依次 Poll 每个行为，每个行为至多处理 PollBudget 条消息
//  3. 执行行为返回的 ToSwarm 动作，并把事件按顺序送入 Events()
//
// 定时器按 TickInterval 调用各行为的 Tick。阻塞 I/O 一律在独立
// goroutine 中完成，结果经 Mailbox 投递回循环，连接表与各行为的
// 状态表因此无需加锁。
//
// # 入站流
//
// 每条入站流在后台用 multistream-select 协商，协议来自各行为的
// Protocols()，协商完成后在事件循环中交给对应行为。
//
// # 快速开始
//
//	s, err := swarm.NewSwarm(id.ID(),
//	    swarm.WithTransports(tcpTransport, relayTransport),
//	    swarm.WithBehaviours(relayServer, pingBehaviour),
//	)
//	go s.Run(ctx)
//	addrs, err := s.Listen(ma.StringCast("/ip4/0.0.0.0/tcp/4001"))
//	for ev := range s.Events() {
//	    ...
//	}
package swarm
