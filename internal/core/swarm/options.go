package swarm

import (
	"errors"

	"github.com/benbjohnson/clock"

	pkgif "github.com/dep2p/go-relay/pkg/interfaces"
)

// Option Swarm 选项
type Option func(*Swarm) error

// WithConfig 设置配置
func WithConfig(cfg Config) Option {
	return func(s *Swarm) error {
		if cfg.DialTimeout <= 0 || cfg.NegotiateTimeout <= 0 || cfg.TickInterval <= 0 || cfg.PollBudget <= 0 {
			return errors.New("swarm: invalid config")
		}
		s.cfg = cfg
		return nil
	}
}

// WithClock 设置时钟（测试使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(s *Swarm) error {
		if c != nil {
			s.clock = c
		}
		return nil
	}
}

// WithTransports 添加传输层
func WithTransports(ts ...pkgif.Transport) Option {
	return func(s *Swarm) error {
		for _, t := range ts {
			if t != nil {
				s.transports = append(s.transports, t)
			}
		}
		return nil
	}
}

// WithBehaviours 添加行为
func WithBehaviours(bs ...NetworkBehaviour) Option {
	return func(s *Swarm) error {
		for _, b := range bs {
			if b != nil {
				s.behaviours = append(s.behaviours, b)
			}
		}
		return nil
	}
}

// WithObserver 设置事件观察者
func WithObserver(o Observer) Option {
	return func(s *Swarm) error {
		s.observer = o
		return nil
	}
}
