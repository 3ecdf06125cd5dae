// Package noise 实现 Noise 协议安全传输
//
// 使用 Noise_XX_25519_ChaChaPoly_SHA256 模式，与 libp2p-noise 兼容：
//   - XX: 三轮握手，双方相互认证
//   - 25519: Curve25519 DH，静态密钥由 Ed25519 身份密钥转换而来
//   - ChaChaPoly: ChaCha20-Poly1305 对称加密
//   - SHA256: HKDF 密钥派生
//
// 握手 payload 携带序列化的 Ed25519 公钥以及对
// "noise-libp2p-static-key:" + Curve25519 静态公钥 的签名，
// 从而把 Noise 静态密钥绑定到节点身份。
//
// 同一实现既用于直连 TCP，也用于经由中继电路的端到端加密：
// 中继只看到密文。
//
// # 使用示例
//
//	tr, err := noise.New(id)
//	if err != nil {
//	    return err
//	}
//	sc, err := tr.SecureOutbound(ctx, conn, remotePeer)
package noise
