package config

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-relay/pkg/types"
)

// RelayConfig 中继配置
//
// 同一节点可以同时作为中继服务端（为他人转发）和中继客户端
// （在其它中继上预留、经由中继拨号）。
type RelayConfig struct {
	// EnableServer 启用中继服务端
	EnableServer bool `json:"enable_server"`

	// EnableClient 启用中继客户端
	EnableClient bool `json:"enable_client"`

	// Server 服务端策略
	Server RelayServerConfig `json:"server"`

	// Client 客户端配置
	Client RelayClientConfig `json:"client"`
}

// RelayServerConfig 中继服务端策略
//
// 0 值的计数/配额字段表示不限制，时长字段必须为正。
type RelayServerConfig struct {
	// MaxReservations 最大并发预留数（续期不计入）
	MaxReservations int `json:"max_reservations"`

	// DefaultReservationDuration 请求时长为 0 时授予的时长
	DefaultReservationDuration Duration `json:"default_reservation_duration"`

	// MaxReservationDuration 授予时长上限，超出部分被截断
	MaxReservationDuration Duration `json:"max_reservation_duration"`

	// MaxCircuits 最大并发电路数
	MaxCircuits int `json:"max_circuits"`

	// MaxCircuitsPerPeer 每个节点的最大并发电路数
	MaxCircuitsPerPeer int `json:"max_circuits_per_peer"`

	// MaxCircuitDuration 电路最长存活时间
	MaxCircuitDuration Duration `json:"max_circuit_duration"`

	// MaxCircuitBytes 电路数据配额（每个方向）
	MaxCircuitBytes int64 `json:"max_circuit_bytes"`

	// CircuitIdleTimeout 电路空闲超时
	CircuitIdleTimeout Duration `json:"circuit_idle_timeout"`

	// ReservationAcceptTimeout 预留请求读取与应答的时间窗口
	ReservationAcceptTimeout Duration `json:"reservation_accept_timeout"`

	// CircuitEstablishTimeout 电路建立的时间窗口
	CircuitEstablishTimeout Duration `json:"circuit_establish_timeout"`

	// ReservationRate 每个节点每秒允许的预留请求数
	ReservationRate float64 `json:"reservation_rate"`

	// ReservationBurst 预留请求突发上限
	ReservationBurst int `json:"reservation_burst"`

	// AllowPeers 白名单（NodeID 字符串），非空时只接受名单内节点
	AllowPeers []string `json:"allow_peers,omitempty"`

	// DenyPeers 黑名单（NodeID 字符串）
	DenyPeers []string `json:"deny_peers,omitempty"`

	// BufferSize 转发缓冲区大小
	BufferSize int `json:"buffer_size"`
}

// RelayClientConfig 中继客户端配置
type RelayClientConfig struct {
	// Relays 启动时预留的中继地址（需包含 /p2p/<relay-id>）
	Relays []string `json:"relays,omitempty"`

	// ReservationDuration 请求的预留时长，0 交由中继决定
	ReservationDuration Duration `json:"reservation_duration"`

	// ConnectTimeout 经中继建立电路与 STOP 应答的超时
	ConnectTimeout Duration `json:"connect_timeout"`
}

// DefaultRelayConfig 返回默认中继配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		EnableServer: true,
		EnableClient: true,
		Server: RelayServerConfig{
			MaxReservations:            DefaultMaxReservations,
			DefaultReservationDuration: Duration(DefaultReservationDuration),
			MaxReservationDuration:     Duration(DefaultMaxReservationDuration),
			MaxCircuits:                DefaultMaxCircuits,
			MaxCircuitsPerPeer:         DefaultMaxCircuitsPerPeer,
			MaxCircuitDuration:         Duration(DefaultMaxCircuitDuration),
			MaxCircuitBytes:            DefaultMaxCircuitBytes,
			CircuitIdleTimeout:         Duration(DefaultCircuitIdleTimeout),
			ReservationAcceptTimeout:   Duration(DefaultReservationAcceptTimeout),
			CircuitEstablishTimeout:    Duration(DefaultCircuitEstablishTimeout),
			ReservationRate:            DefaultReservationRate,
			ReservationBurst:           DefaultReservationBurst,
			BufferSize:                 DefaultBufferSize,
		},
		Client: RelayClientConfig{
			ReservationDuration: Duration(DefaultClientReservationDuration),
			ConnectTimeout:      Duration(DefaultClientConnectTimeout),
		},
	}
}

// Validate 验证中继配置
func (c RelayConfig) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Client.ReservationDuration < 0 {
		return errors.New("client: reservation duration must not be negative")
	}
	if c.Client.ConnectTimeout <= 0 {
		return errors.New("client: connect timeout must be positive")
	}
	return nil
}

// Validate 验证服务端策略
func (c RelayServerConfig) Validate() error {
	if c.MaxReservations < 0 || c.MaxCircuits < 0 || c.MaxCircuitsPerPeer < 0 {
		return errors.New("limits must not be negative")
	}
	if c.MaxCircuitBytes < 0 {
		return errors.New("max circuit bytes must not be negative")
	}
	if c.MaxReservationDuration <= 0 {
		return errors.New("max reservation duration must be positive")
	}
	if c.DefaultReservationDuration <= 0 {
		return errors.New("default reservation duration must be positive")
	}
	if c.MaxCircuitDuration < 0 || c.CircuitIdleTimeout < 0 {
		return errors.New("circuit timeouts must not be negative")
	}
	if c.ReservationAcceptTimeout <= 0 || c.CircuitEstablishTimeout <= 0 {
		return errors.New("accept and establish timeouts must be positive")
	}
	if c.ReservationRate < 0 || c.ReservationBurst < 0 {
		return errors.New("reservation rate must not be negative")
	}
	if c.ReservationRate > 0 && c.ReservationBurst == 0 {
		return errors.New("reservation burst must be positive when a rate is set")
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	for _, s := range append(append([]string(nil), c.AllowPeers...), c.DenyPeers...) {
		if _, err := types.ParseNodeID(s); err != nil {
			return fmt.Errorf("peer list entry %q: %w", s, err)
		}
	}
	return nil
}
