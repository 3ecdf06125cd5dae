package noise

import (
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
	"github.com/dep2p/go-relay/pkg/types"
)

// maxPlaintextSize 单帧可承载的明文上限（扣除 16 字节 AEAD 标签）
const maxPlaintextSize = maxFrameSize - 16

// 确保实现接口
var _ pkgif.SecureConn = (*secureConn)(nil)

// secureConn Noise 安全连接
type secureConn struct {
	net.Conn

	sendCS *noise.CipherState
	recvCS *noise.CipherState

	localPeer  types.NodeID
	remotePeer types.NodeID
	remoteKey  []byte

	readMu  sync.Mutex
	writeMu sync.Mutex

	// 上一帧未读完的明文
	readBuf []byte
}

// Read 读取并解密
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}

	for {
		frame, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		if len(frame) == 0 {
			continue
		}

		plaintext, err := c.recvCS.Decrypt(nil, nil, frame)
		if err != nil {
			return 0, fmt.Errorf("decrypt: %w", err)
		}
		if len(plaintext) == 0 {
			continue
		}

		n := copy(p, plaintext)
		if n < len(plaintext) {
			c.readBuf = plaintext[n:]
		}
		return n, nil
	}
}

// Write 加密并写入，超过单帧上限时分帧
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := written + maxPlaintextSize
		if end > len(p) {
			end = len(p)
		}
		ciphertext, err := c.sendCS.Encrypt(nil, nil, p[written:end])
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		if err := writeFrame(c.Conn, ciphertext); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

// LocalPeer 返回本地节点 ID
func (c *secureConn) LocalPeer() types.NodeID {
	return c.localPeer
}

// RemotePeer 返回远程节点 ID
func (c *secureConn) RemotePeer() types.NodeID {
	return c.remotePeer
}

// RemotePublicKey 返回远程节点的序列化公钥
func (c *secureConn) RemotePublicKey() []byte {
	return c.remoteKey
}
