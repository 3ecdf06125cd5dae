// Package metrics 提供 Prometheus 监控指标
//
// Metrics 实现 swarm.Observer，在事件循环中同步观察 Swarm 事件
// （连接、监听、各行为事件）并更新指标，不做任何阻塞操作。
//
// # 使用
//
//	m := metrics.New()
//	s, _ := swarm.NewSwarm(id, swarm.WithObserver(m), ...)
//	go m.Serve(ctx, ln)
//
// 指标统一使用 relay 命名空间，通过 /metrics 暴露。
package metrics
