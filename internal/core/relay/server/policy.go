package server

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/core/relay/pb"
	"github.com/dep2p/go-relay/pkg/types"
)

// Policy 中继服务端策略
//
// 计数与配额字段为 0 表示不限制。
type Policy struct {
	MaxReservations            int
	DefaultReservationDuration time.Duration
	MaxReservationDuration     time.Duration
	MaxCircuits                int
	MaxCircuitsPerPeer         int
	MaxCircuitDuration         time.Duration
	MaxCircuitBytes            int64
	CircuitIdleTimeout         time.Duration
	ReservationAcceptTimeout   time.Duration
	CircuitEstablishTimeout    time.Duration
	ReservationRate            float64
	ReservationBurst           int
	BufferSize                 int

	allow map[types.NodeID]struct{}
	deny  map[types.NodeID]struct{}
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	p, _ := PolicyFromConfig(config.DefaultRelayConfig().Server)
	return p
}

// PolicyFromConfig 从配置构建策略
func PolicyFromConfig(c config.RelayServerConfig) (Policy, error) {
	if err := c.Validate(); err != nil {
		return Policy{}, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	p := Policy{
		MaxReservations:            c.MaxReservations,
		DefaultReservationDuration: c.DefaultReservationDuration.Std(),
		MaxReservationDuration:     c.MaxReservationDuration.Std(),
		MaxCircuits:                c.MaxCircuits,
		MaxCircuitsPerPeer:         c.MaxCircuitsPerPeer,
		MaxCircuitDuration:         c.MaxCircuitDuration.Std(),
		MaxCircuitBytes:            c.MaxCircuitBytes,
		CircuitIdleTimeout:         c.CircuitIdleTimeout.Std(),
		ReservationAcceptTimeout:   c.ReservationAcceptTimeout.Std(),
		CircuitEstablishTimeout:    c.CircuitEstablishTimeout.Std(),
		ReservationRate:            c.ReservationRate,
		ReservationBurst:           c.ReservationBurst,
		BufferSize:                 c.BufferSize,
	}
	for _, s := range c.AllowPeers {
		id, _ := types.ParseNodeID(s)
		p.Allow(id)
	}
	for _, s := range c.DenyPeers {
		id, _ := types.ParseNodeID(s)
		p.Deny(id)
	}
	return p, nil
}

// Allow 将节点加入白名单
//
// 白名单非空时，只有名单内的节点可以预留或发起电路。
func (p *Policy) Allow(id types.NodeID) {
	if p.allow == nil {
		p.allow = make(map[types.NodeID]struct{})
	}
	p.allow[id] = struct{}{}
}

// Deny 将节点加入黑名单
func (p *Policy) Deny(id types.NodeID) {
	if p.deny == nil {
		p.deny = make(map[types.NodeID]struct{})
	}
	p.deny[id] = struct{}{}
}

// Permits 检查 ACL
func (p *Policy) Permits(id types.NodeID) bool {
	if _, ok := p.deny[id]; ok {
		return false
	}
	if len(p.allow) > 0 {
		_, ok := p.allow[id]
		return ok
	}
	return true
}

// clampDuration 将请求时长限制在策略范围内
func (p *Policy) clampDuration(requested time.Duration) time.Duration {
	d := requested
	if d <= 0 {
		d = p.DefaultReservationDuration
	}
	if d > p.MaxReservationDuration {
		d = p.MaxReservationDuration
	}
	return d
}

// limit 返回通告给双方的电路限制，无限制时返回 nil
func (p *Policy) limit() *pb.Limit {
	if p.MaxCircuitDuration <= 0 && p.MaxCircuitBytes <= 0 {
		return nil
	}
	return &pb.Limit{Duration: p.MaxCircuitDuration, Data: uint64(p.MaxCircuitBytes)}
}

// ============================================================================
//                              请求速率
// ============================================================================

// rateLimiter 按节点限制预留请求速率（仅事件循环）
type rateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters map[types.NodeID]*rate.Limiter
}

func newRateLimiter(r float64, burst int) *rateLimiter {
	return &rateLimiter{
		limit:    rate.Limit(r),
		burst:    burst,
		limiters: make(map[types.NodeID]*rate.Limiter),
	}
}

// allow 消耗一个令牌；未配置速率时总是允许
func (l *rateLimiter) allow(id types.NodeID, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	lim, ok := l.limiters[id]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[id] = lim
	}
	return lim.AllowN(now, 1)
}

// gc 回收令牌已回满的条目
func (l *rateLimiter) gc(now time.Time) {
	for id, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
}
