// Package main 提供独立的中继服务器
//
// 中继服务器为 NAT 后的节点保留电路预约，并在两个无法直连的节点之间转发流量。
//
// 使用方法:
//
//	relay-server --secret-key-seed 1 --port 4001
//	relay-server --secret-key-seed 2 --dial /ip4/1.2.3.4/tcp/4001/p2p/12D3KooW...
//
// 配置来源按优先级从低到高：默认值、--config 指定的 JSON 文件、RELAY_* 环境变量、命令行参数。
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
