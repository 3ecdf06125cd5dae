package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-relay/config"
	"github.com/dep2p/go-relay/internal/util/logger"
)

// ErrMissingSeed 未提供身份种子
var ErrMissingSeed = errors.New("--secret-key-seed is required")

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// loadConfig 合并默认值、配置文件、环境变量与显式设置的命令行参数
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()

	cfg := config.DefaultConfig()
	if path, _ := f.GetString(flagConfig); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if cfg.Identity.SecretKeySeed == nil {
		return nil, ErrMissingSeed
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags 只覆盖用户显式设置的参数
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	changed := f.Changed

	if changed(flagUseIPv6) {
		cfg.Listen.UseIPv6, _ = f.GetBool(flagUseIPv6)
	}
	if changed(flagSecretKeySeed) {
		seed, err := f.GetUint8(flagSecretKeySeed)
		if err != nil {
			return err
		}
		cfg.Identity = config.WithSeed(seed)
	}
	if changed(flagPort) {
		cfg.Listen.Port, _ = f.GetInt(flagPort)
	}
	if changed(flagDial) {
		cfg.Listen.Dial, _ = f.GetStringArray(flagDial)
	}
	if changed(flagRelay) {
		cfg.Relay.Client.Relays, _ = f.GetStringArray(flagRelay)
	}
	if changed(flagMetricsAddr) {
		cfg.Metrics.Addr, _ = f.GetString(flagMetricsAddr)
	}
	if changed(flagMaxReservations) {
		cfg.Relay.Server.MaxReservations, _ = f.GetInt(flagMaxReservations)
	}
	if changed(flagMaxCircuits) {
		cfg.Relay.Server.MaxCircuits, _ = f.GetInt(flagMaxCircuits)
	}
	if changed(flagMaxCircuitDuration) {
		d, _ := f.GetDuration(flagMaxCircuitDuration)
		cfg.Relay.Server.MaxCircuitDuration = config.Duration(d)
	}
	if changed(flagMaxCircuitBytes) {
		cfg.Relay.Server.MaxCircuitBytes, _ = f.GetInt64(flagMaxCircuitBytes)
	}
	if changed(flagReservationTTL) {
		d, _ := f.GetDuration(flagReservationTTL)
		cfg.Relay.Server.DefaultReservationDuration = config.Duration(d)
		cfg.Relay.Server.MaxReservationDuration = config.Duration(d)
	}
	return nil
}

// applyLogLevel 应用 --log-level
//
// 未显式设置时保留 RELAY_LOG_LEVEL 的子系统配置。
func applyLogLevel(cmd *cobra.Command) error {
	if !cmd.Flags().Changed(flagLogLevel) {
		return nil
	}
	name, _ := cmd.Flags().GetString(flagLogLevel)
	level, ok := logger.ParseLevel(name)
	if !ok {
		return fmt.Errorf("invalid --%s %q", flagLogLevel, name)
	}
	logger.SetGlobalLevel(level)
	return nil
}
