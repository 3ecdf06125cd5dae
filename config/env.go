package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "RELAY_"

// 环境变量名（不含前缀）
const (
	EnvPort               = "PORT"
	EnvUseIPv6            = "USE_IPV6"
	EnvSecretKeySeed      = "SECRET_KEY_SEED"
	EnvDial               = "DIAL"
	EnvRelays             = "RELAYS"
	EnvMetricsAddr        = "METRICS_ADDR"
	EnvMaxReservations    = "MAX_RESERVATIONS"
	EnvMaxCircuits        = "MAX_CIRCUITS"
	EnvMaxCircuitDuration = "MAX_CIRCUIT_DURATION"
	EnvMaxCircuitBytes    = "MAX_CIRCUIT_BYTES"
	EnvReservationTTL     = "RESERVATION_TTL"
)

// ApplyEnv 应用 RELAY_* 环境变量覆盖
//
// 环境变量优先级高于配置文件，低于命令行参数。
// 列表类变量（DIAL、RELAYS）以逗号分隔。
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvPort, v, err)
		}
		c.Listen.Port = port
	}
	if v, ok := get(EnvUseIPv6); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(EnvUseIPv6, v, err)
		}
		c.Listen.UseIPv6 = b
	}
	if v, ok := get(EnvSecretKeySeed); ok {
		seed, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return envError(EnvSecretKeySeed, v, err)
		}
		c.Identity = WithSeed(uint8(seed))
	}
	if v, ok := get(EnvDial); ok {
		c.Listen.Dial = splitAndTrim(v, ",")
	}
	if v, ok := get(EnvRelays); ok {
		c.Relay.Client.Relays = splitAndTrim(v, ",")
	}
	if v, ok := get(EnvMetricsAddr); ok {
		c.Metrics.Addr = v
	}
	if v, ok := get(EnvMaxReservations); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvMaxReservations, v, err)
		}
		c.Relay.Server.MaxReservations = n
	}
	if v, ok := get(EnvMaxCircuits); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvMaxCircuits, v, err)
		}
		c.Relay.Server.MaxCircuits = n
	}
	if v, ok := get(EnvMaxCircuitDuration); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError(EnvMaxCircuitDuration, v, err)
		}
		c.Relay.Server.MaxCircuitDuration = Duration(d)
	}
	if v, ok := get(EnvMaxCircuitBytes); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError(EnvMaxCircuitBytes, v, err)
		}
		c.Relay.Server.MaxCircuitBytes = n
	}
	if v, ok := get(EnvReservationTTL); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError(EnvReservationTTL, v, err)
		}
		c.Relay.Server.DefaultReservationDuration = Duration(d)
		c.Relay.Server.MaxReservationDuration = Duration(d)
	}
	return nil
}

func envError(name, value string, err error) error {
	return fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err)
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
