package config

import "time"

// ============================================================================
//                              中继服务端默认策略
// ============================================================================

// 预留与电路上限沿用 circuit v2 中继的常见取值：
// 中继节点为公共资源，单个电路只承载打洞前的信令与少量数据。
const (
	// DefaultMaxReservations 最大并发预留数
	DefaultMaxReservations = 128

	// DefaultReservationDuration 客户端未指定时长时授予的预留时长
	DefaultReservationDuration = time.Hour

	// DefaultMaxReservationDuration 单次授予的最长预留时长
	DefaultMaxReservationDuration = time.Hour

	// DefaultMaxCircuits 最大并发电路数
	DefaultMaxCircuits = 16

	// DefaultMaxCircuitsPerPeer 每个节点（作为任一端）的最大并发电路数
	DefaultMaxCircuitsPerPeer = 4

	// DefaultMaxCircuitDuration 单个电路的最长存活时间
	DefaultMaxCircuitDuration = 2 * time.Minute

	// DefaultMaxCircuitBytes 单个电路每个方向的数据配额（128 KiB）
	DefaultMaxCircuitBytes int64 = 1 << 17

	// DefaultCircuitIdleTimeout 电路无数据流动的最长时间
	DefaultCircuitIdleTimeout = time.Minute

	// DefaultReservationAcceptTimeout 读取预留请求并写回应答的时间窗口
	DefaultReservationAcceptTimeout = 10 * time.Second

	// DefaultCircuitEstablishTimeout 从 CONNECT 到目标应答 STOP 的时间窗口
	DefaultCircuitEstablishTimeout = 30 * time.Second

	// DefaultReservationRate 每个节点每秒允许的预留请求数
	DefaultReservationRate = 0.25

	// DefaultReservationBurst 预留请求突发上限
	DefaultReservationBurst = 4

	// DefaultBufferSize 转发缓冲区大小
	DefaultBufferSize = 4096
)

// ============================================================================
//                              其它组件默认值
// ============================================================================

const (
	// DefaultPort 默认监听端口（0 表示由系统分配）
	DefaultPort = 0

	// DefaultClientReservationDuration 客户端请求的预留时长（0 交由中继决定）
	DefaultClientReservationDuration = 0

	// DefaultClientConnectTimeout 客户端经中继建立电路的超时
	DefaultClientConnectTimeout = 30 * time.Second

	// DefaultPingInterval 存活检测间隔
	DefaultPingInterval = 15 * time.Second

	// DefaultPingTimeout 单次存活检测超时
	DefaultPingTimeout = 10 * time.Second

	// DefaultPingMaxFailures 连续失败多少次后关闭连接
	DefaultPingMaxFailures = 3

	// DefaultIdentifyTimeout identify 交换超时
	DefaultIdentifyTimeout = 10 * time.Second

	// DefaultIdentifyCacheSize identify 结果缓存条目数
	DefaultIdentifyCacheSize = 256

	// DefaultAgentVersion identify 中通告的代理版本
	DefaultAgentVersion = "go-relay/0.1.0"

	// DefaultDialTimeout 拨号（含升级）超时
	DefaultDialTimeout = 15 * time.Second

	// DefaultNegotiateTimeout 入站流协议协商超时
	DefaultNegotiateTimeout = 10 * time.Second

	// DefaultTickInterval 事件循环的定时驱动间隔
	DefaultTickInterval = time.Second

	// DefaultPollBudget 每个行为每轮最多处理的消息数
	DefaultPollBudget = 32

	// DefaultEventBuffer 事件输出通道容量
	DefaultEventBuffer = 256
)
