// Package ping 实现存活检测协议
//
// ping 协议用于检测连接是否存活，测量往返延迟（RTT）。
//
// # 协议 ID
//
//	/ipfs/ping/1.0.0
//
// # 消息格式
//
// 请求和响应都是 32 字节的随机数据，响应必须与请求相同。
// 同一条流上可以连续发送多次。
//
// # 行为
//
// Behaviour 对每条连接每隔 Interval 检测一次，结果以 Event 输出。
// 连续 MaxFailures 次失败后请求 Swarm 关闭该连接。
//
// 也可以直接在某条连接上检测：
//
//	rtt, err := ping.Ping(ctx, conn)
package ping
