// Package noise 实现 Noise 协议安全传输
//
// Noise XX 握手流程：
//   -> e                                      (发起者发送临时公钥)
//   <- e, ee, s, es, payload                  (响应者发送临时公钥、静态公钥、payload)
//   -> s, se, payload                         (发起者发送静态公钥、payload)
//
// payload 包含：
//   - identity_key: Ed25519 身份公钥（protobuf 序列化）
//   - identity_sig: Sign("noise-libp2p-static-key:" + curve25519_static_pubkey)
package noise

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relay/internal/core/identity"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// payloadSigPrefix 签名 payload 的前缀
const payloadSigPrefix = "noise-libp2p-static-key:"

// maxFrameSize Noise 单帧上限
const maxFrameSize = 65535

// NoiseHandshakePayload 字段号
const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
)

// ============================================================================
// Noise XX 握手实现
// ============================================================================

// performHandshake 执行 Noise XX 握手
//
// remotePeer 非空时校验握手得到的远程身份。
func performHandshake(conn net.Conn, id pkgif.Identity, remotePeer types.NodeID, isInitiator bool) (*secureConn, error) {
	// 1. 密钥转换：Ed25519 -> Curve25519
	curvePriv := ed25519ToCurve25519Private(id.PrivateKey())
	curvePub := ed25519ToCurve25519Public(id.PublicKey())

	// 2. 创建 Noise 配置
	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cs,
		Pattern:       noise.HandshakeXX,
		Initiator:     isInitiator,
		StaticKeypair: noise.DHKey{Private: curvePriv, Public: curvePub},
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	// 3. 生成本地 payload
	localPayload, err := generateHandshakePayload(id, curvePub)
	if err != nil {
		return nil, fmt.Errorf("generate handshake payload: %w", err)
	}

	// 4. 执行握手
	var sendCS, recvCS *noise.CipherState
	var remotePayload []byte
	if isInitiator {
		sendCS, recvCS, remotePayload, err = clientHandshake(conn, hs, localPayload)
	} else {
		sendCS, recvCS, remotePayload, err = serverHandshake(conn, hs, localPayload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}

	// 5. 验证远程 payload 并提取身份
	remoteStatic := hs.PeerStatic()
	if len(remoteStatic) != 32 {
		return nil, fmt.Errorf("%w: remote static key length %d", ErrInvalidHandshake, len(remoteStatic))
	}
	remoteKey, actualPeer, err := handleRemotePayload(remotePayload, remoteStatic)
	if err != nil {
		return nil, err
	}
	if !remotePeer.IsEmpty() && actualPeer != remotePeer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrPeerIDMismatch, remotePeer.ShortString(), actualPeer.ShortString())
	}

	return &secureConn{
		Conn:       conn,
		sendCS:     sendCS,
		recvCS:     recvCS,
		localPeer:  id.ID(),
		remotePeer: actualPeer,
		remoteKey:  remoteKey,
	}, nil
}

// generateHandshakePayload 生成握手 payload
func generateHandshakePayload(id pkgif.Identity, curvePub []byte) ([]byte, error) {
	toSign := append([]byte(payloadSigPrefix), curvePub...)
	sig, err := id.Sign(toSign)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}

	key := id.MarshalPublicKey()
	b := make([]byte, 0, len(key)+len(sig)+8)
	b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, key)
	b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, sig)
	return b, nil
}

// handleRemotePayload 验证签名并提取远程身份
func handleRemotePayload(payload []byte, remoteStatic []byte) ([]byte, types.NodeID, error) {
	key, sig, err := parsePayload(payload)
	if err != nil {
		return nil, types.EmptyNodeID, err
	}

	toVerify := append([]byte(payloadSigPrefix), remoteStatic...)
	ok, err := identity.Verify(key, toVerify, sig)
	if err != nil {
		return nil, types.EmptyNodeID, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !ok {
		return nil, types.EmptyNodeID, ErrInvalidSignature
	}
	return key, types.NodeIDFromPublicKey(key), nil
}

// parsePayload 解析 NoiseHandshakePayload
func parsePayload(data []byte) (key, sig []byte, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, nil, ErrInvalidPayload
		}
		data = data[n:]
		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, nil, ErrInvalidPayload
			}
			data = data[m:]
			continue
		}
		v, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, nil, ErrInvalidPayload
		}
		data = data[m:]
		switch num {
		case fieldIdentityKey:
			key = v
		case fieldIdentitySig:
			sig = v
		}
	}
	if len(key) == 0 || len(sig) == 0 {
		return nil, nil, ErrInvalidPayload
	}
	return key, sig, nil
}

// ============================================================================
// 握手流程
// ============================================================================

// clientHandshake 发起者握手
func clientHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	// 轮次 1: -> e
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 1: %w", err)
	}
	if err := writeFrame(conn, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 1: %w", err)
	}

	// 轮次 2: <- e, ee, s, es, payload
	msg2, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 2: %w", err)
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 2: %w", err)
	}

	// 轮次 3: -> s, se, payload
	msg3, cs1, cs2, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 3: %w", err)
	}
	if err := writeFrame(conn, msg3); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 3: %w", err)
	}

	// 发起者：cs1 发送，cs2 接收
	return cs1, cs2, remotePayload, nil
}

// serverHandshake 响应者握手
func serverHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	// 轮次 1: <- e
	msg1, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 1: %w", err)
	}
	if _, _, _, err = hs.ReadMessage(nil, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("read message 1: %w", err)
	}

	// 轮次 2: -> e, ee, s, es, payload
	msg2, _, _, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 2: %w", err)
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 2: %w", err)
	}

	// 轮次 3: <- s, se, payload
	msg3, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 3: %w", err)
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 3: %w", err)
	}

	// 响应者与发起者相反
	return cs2, cs1, remotePayload, nil
}

// ============================================================================
// 密钥转换
// ============================================================================

// ed25519ToCurve25519Private 将 Ed25519 私钥转换为 Curve25519 私钥
//
// 对种子做 SHA-512，取前 32 字节并 clamp（RFC 7748）。
func ed25519ToCurve25519Private(edPriv ed25519.PrivateKey) []byte {
	h := sha512.Sum512(edPriv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// ed25519ToCurve25519Public 将 Ed25519 公钥转换为 Curve25519 公钥
//
// u = (1 + y) / (1 - y)  (mod p)
func ed25519ToCurve25519Public(edPub ed25519.PublicKey) []byte {
	point, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return make([]byte, 32)
	}
	return point.BytesMontgomery()
}

// ============================================================================
// 帧读写
// ============================================================================

// writeFrame 写入帧（2 字节大端长度 + 数据）
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取帧
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(lenBuf[:])
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
