package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-relay/config"
)

// 命令行参数名
const (
	flagConfig             = "config"
	flagUseIPv6            = "use-ipv6"
	flagSecretKeySeed      = "secret-key-seed"
	flagPort               = "port"
	flagDial               = "dial"
	flagRelay              = "relay"
	flagMetricsAddr        = "metrics-addr"
	flagLogLevel           = "log-level"
	flagMaxReservations    = "max-reservations"
	flagMaxCircuits        = "max-circuits"
	flagMaxCircuitDuration = "max-circuit-duration"
	flagMaxCircuitBytes    = "max-circuit-bytes"
	flagReservationTTL     = "reservation-ttl"
	flagStatsInterval      = "stats-interval"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay-server",
		Short:         "Circuit relay v2 node",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyLogLevel(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			interval, _ := cmd.Flags().GetDuration(flagStatsInterval)
			return runNode(cmd.Context(), cfg, interval)
		},
	}

	def := config.DefaultConfig()
	f := cmd.Flags()
	f.String(flagConfig, "", "JSON 配置文件路径")
	f.Bool(flagUseIPv6, false, "监听 IPv6 通配地址（::）而不是 0.0.0.0")
	f.Uint8(flagSecretKeySeed, 0, "确定性身份种子（必需，可由配置文件或 RELAY_SECRET_KEY_SEED 提供）")
	f.Int(flagPort, def.Listen.Port, "TCP 监听端口，0 表示由系统分配")
	f.StringArray(flagDial, nil, "启动时拨号的地址（可重复）")
	f.StringArray(flagRelay, nil, "启动时预约的中继地址（需包含 /p2p/<id>，可重复）")
	f.String(flagMetricsAddr, "", "Prometheus 指标监听地址（host:port），为空不启用")
	f.String(flagLogLevel, "info", "日志级别: debug|info|warn|error")
	f.Int(flagMaxReservations, def.Relay.Server.MaxReservations, "最大同时预约数")
	f.Int(flagMaxCircuits, def.Relay.Server.MaxCircuits, "最大同时电路数")
	f.Duration(flagMaxCircuitDuration, time.Duration(def.Relay.Server.MaxCircuitDuration), "单条电路最长存活时间")
	f.Int64(flagMaxCircuitBytes, def.Relay.Server.MaxCircuitBytes, "单条电路最多转发字节数，0 表示不限")
	f.Duration(flagReservationTTL, time.Duration(def.Relay.Server.MaxReservationDuration), "预约有效期上限")
	f.Duration(flagStatsInterval, time.Minute, "统计日志间隔，0 表示不输出")
	return cmd
}
