// Package identity 实现中继节点的身份管理
//
// 节点身份是一对 Ed25519 密钥。公钥按 libp2p crypto.PublicKey
// protobuf 格式序列化，其 SHA-256 摘要即 NodeID。
//
// # 确定性身份
//
// 运维可以用单字节种子固定节点身份：
//
//	id := identity.FromSeed(1)
//	fmt.Println(id.ID()) // 每次启动都相同
//
// # Fx 模块
//
//	app := fx.New(
//	    fx.Supply(cfg),
//	    identity.Module(),
//	    fx.Invoke(func(id pkgif.Identity) {
//	        fmt.Println(id.ID())
//	    }),
//	)
package identity
