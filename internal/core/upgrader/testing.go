package upgrader

import (
	"github.com/dep2p/go-relay/internal/core/identity"
	"github.com/dep2p/go-relay/internal/core/muxer/yamux"
	"github.com/dep2p/go-relay/internal/core/security/noise"
	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// NewForIdentity 使用 Noise + yamux 为指定身份创建升级器
//
// 供其它包的测试与嵌入场景使用。
func NewForIdentity(id *identity.Identity) *Upgrader {
	sec, err := noise.New(id)
	if err != nil {
		panic(err)
	}
	u, err := New(id, Config{
		SecurityTransports: []pkgif.SecureTransport{sec},
		StreamMuxers:       []pkgif.StreamMuxer{yamux.NewTransport(nil)},
	})
	if err != nil {
		panic(err)
	}
	return u
}
