// Package config declares every configuration key the service
// recognizes, sourced through a flag > env var > TOML file chain, and
// collected into an explicit Config struct passed into constructors —
// never a global singleton.
package config

import (
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// Config collects every recognized configuration key.
type Config struct {
	ListenerBind           string
	ListenerMaxConnections int

	PacketMaxSize            int
	PacketHeapAllocThreshold int

	AdmissionBanMinutes           int
	AdmissionPurgeIntervalSeconds int

	RatelimitMaxRequests    int
	RatelimitWindowMS       int64
	RatelimitLockoutSeconds int64

	ConnectionIdleTimeoutSeconds int
	ConnectionTxHighWater        int
	ConnectionTxLowWater         int
}

// BanDuration returns AdmissionBanMinutes as a time.Duration.
func (c Config) BanDuration() time.Duration {
	return time.Duration(c.AdmissionBanMinutes) * time.Minute
}

// PurgeInterval returns AdmissionPurgeIntervalSeconds as a
// time.Duration.
func (c Config) PurgeInterval() time.Duration {
	return time.Duration(c.AdmissionPurgeIntervalSeconds) * time.Second
}

// IdleTimeout returns ConnectionIdleTimeoutSeconds as a time.Duration.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.ConnectionIdleTimeoutSeconds) * time.Second
}

// Flags declares one CLI flag per recognized configuration key, each
// sourced from an env var or the TOML file at configFilePath before
// falling back to its default value — the same shape as
// tzrikka-timpani's per-component Flags functions.
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "listener-bind",
			Usage: "local TCP endpoint the listener binds, e.g. ':9000'",
			Value: ":9000",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_LISTENER_BIND"),
				toml.TOML("listener.bind", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "listener-max-connections",
			Usage: "maximum concurrently open connections, 0 for unbounded",
			Value: 0,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_LISTENER_MAX_CONNECTIONS"),
				toml.TOML("listener.max_connections", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "packet-max-size",
			Usage: "maximum frame size in bytes, header included",
			Value: 16 * 1024,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_PACKET_MAX_SIZE"),
				toml.TOML("packet.max_size", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.IntFlag{
			Name:  "packet-heap-alloc-threshold",
			Usage: "payload size above which the arena allocates directly instead of pooling",
			Value: 1024,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_PACKET_HEAP_ALLOC_THRESHOLD"),
				toml.TOML("packet.heap_alloc_threshold", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.IntFlag{
			Name:  "admission-ban-minutes",
			Usage: "default ban duration applied on a criterion violation",
			Value: 15,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_ADMISSION_BAN_MINUTES"),
				toml.TOML("admission.ban_minutes", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.IntFlag{
			Name:  "admission-purge-interval-seconds",
			Usage: "how often the admission store purges expired bans and stale criterion state",
			Value: 60,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_ADMISSION_PURGE_INTERVAL_SECONDS"),
				toml.TOML("admission.purge_interval_seconds", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.IntFlag{
			Name:  "ratelimit-max-requests",
			Usage: "requests allowed per address inside the sliding window",
			Value: 100,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_RATELIMIT_MAX_REQUESTS"),
				toml.TOML("ratelimit.max_requests", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.IntFlag{
			Name:  "ratelimit-window-ms",
			Usage: "sliding window width in milliseconds",
			Value: 1000,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_RATELIMIT_WINDOW_MS"),
				toml.TOML("ratelimit.window_ms", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.IntFlag{
			Name:  "ratelimit-lockout-seconds",
			Usage: "lockout duration once an address exceeds its request budget, 0 disables",
			Value: 60,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_RATELIMIT_LOCKOUT_SECONDS"),
				toml.TOML("ratelimit.lockout_seconds", configFilePath),
			),
			Validator: validateNonNegative,
		},
		&cli.IntFlag{
			Name:  "connection-idle-timeout-seconds",
			Usage: "close a connection after this many seconds without a complete valid frame, 0 disables",
			Value: 300,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_CONNECTION_IDLE_TIMEOUT_SECONDS"),
				toml.TOML("connection.idle_timeout_seconds", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "connection-tx-highwater",
			Usage: "tx queue depth above which the read loop pauses",
			Value: 256,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_CONNECTION_TX_HIGHWATER"),
				toml.TOML("connection.tx_highwater", configFilePath),
			),
			Validator: validatePositive,
		},
		&cli.IntFlag{
			Name:  "connection-tx-lowwater",
			Usage: "tx queue depth at which a paused read loop resumes",
			Value: 64,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("NALIX_CONNECTION_TX_LOWWATER"),
				toml.TOML("connection.tx_lowwater", configFilePath),
			),
			Validator: validatePositive,
		},
	}
}

// FromCommand collects the values of every flag Flags declared into a
// Config. Call after cmd.Run has parsed arguments.
func FromCommand(cmd *cli.Command) Config {
	return Config{
		ListenerBind:           cmd.String("listener-bind"),
		ListenerMaxConnections: cmd.Int("listener-max-connections"),

		PacketMaxSize:            cmd.Int("packet-max-size"),
		PacketHeapAllocThreshold: cmd.Int("packet-heap-alloc-threshold"),

		AdmissionBanMinutes:           cmd.Int("admission-ban-minutes"),
		AdmissionPurgeIntervalSeconds: cmd.Int("admission-purge-interval-seconds"),

		RatelimitMaxRequests:    cmd.Int("ratelimit-max-requests"),
		RatelimitWindowMS:       int64(cmd.Int("ratelimit-window-ms")),
		RatelimitLockoutSeconds: int64(cmd.Int("ratelimit-lockout-seconds")),

		ConnectionIdleTimeoutSeconds: cmd.Int("connection-idle-timeout-seconds"),
		ConnectionTxHighWater:        cmd.Int("connection-tx-highwater"),
		ConnectionTxLowWater:         cmd.Int("connection-tx-lowwater"),
	}
}

func validatePositive(v int) error {
	if v <= 0 {
		return errNotPositive
	}
	return nil
}

func validateNonNegative(v int) error {
	if v < 0 {
		return errNegative
	}
	return nil
}
