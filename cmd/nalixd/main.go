// Command nalixd runs the binary packet transport core as a standalone
// TCP service: it wires configuration, logging, IP admission, rate
// limiting, Prometheus metrics, and the listener/dispatcher together,
// then blocks until an OS signal requests a graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/phcnguyen/Nalix/admission"
	"github.com/phcnguyen/Nalix/arena"
	"github.com/phcnguyen/Nalix/config"
	"github.com/phcnguyen/Nalix/listener"
	"github.com/phcnguyen/Nalix/metrics"
	"github.com/phcnguyen/Nalix/packet"
	"github.com/phcnguyen/Nalix/ratelimit"
)

func main() {
	cmd := &cli.Command{
		Name:   "nalixd",
		Usage:  "binary packet transport core: framed TCP listener with IP admission control",
		Flags:  flags(),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("nalixd: fatal")
	}
}

func flags() []cli.Flag {
	fs := []cli.Flag{
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
		&cli.StringFlag{
			Name:  "metrics-bind",
			Usage: "local endpoint serving /metrics, empty disables it",
			Value: ":9100",
		},
		&cli.StringFlag{
			Name:  "whitelist",
			Usage: "comma-separated addresses/CIDRs admitted unconditionally",
		},
	}
	return append(fs, config.Flags(configFile())...)
}

// configFile is a no-op source chain placeholder: nalixd has no
// well-known config directory of its own (unlike timpani's XDG-backed
// config.toml), so every key resolves from flag or env var only unless
// the operator points NALIX_CONFIG_FILE at a TOML file on disk.
func configFile() altsrc.StringSourcer {
	if path := os.Getenv("NALIX_CONFIG_FILE"); path != "" {
		return altsrc.StringSourcer(path)
	}
	return altsrc.StringSourcer("")
}

func run(ctx context.Context, cmd *cli.Command) error {
	initLog(cmd.Bool("pretty-log"))

	cfg := config.FromCommand(cmd)

	a := arena.New(cfg.PacketHeapAllocThreshold, 0)
	defer a.Close()

	codec := packet.NewCodec(a, cfg.PacketMaxSize)

	collector := metrics.NewCollector("nalix", "listener")

	store := admission.NewStore(cfg.BanDuration())
	store.OnBan(func(admission.BanRecord) { collector.IncBanIssued() })
	if wl := cmd.String("whitelist"); wl != "" {
		for _, addr := range splitWhitelist(wl) {
			if err := store.AddToWhitelist(addr); err != nil {
				log.Warn().Str("addr", addr).Err(err).Msg("nalixd: invalid whitelist entry")
			}
		}
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		MaxRequests:    cfg.RatelimitMaxRequests,
		WindowMS:       cfg.RatelimitWindowMS,
		LockoutSeconds: cfg.RatelimitLockoutSeconds,
	})
	if err != nil {
		return err
	}
	if err := store.RegisterCriterion(limiter); err != nil {
		return err
	}

	registry := listener.NewHandlerRegistry()
	registerHandlers(registry)

	l := listener.New(listener.Config{
		Bind:             cfg.ListenerBind,
		MaxConnections:   cfg.ListenerMaxConnections,
		IdleTimeout:      cfg.IdleTimeout(),
		TxHighWater:      cfg.ConnectionTxHighWater,
		TxLowWater:       cfg.ConnectionTxLowWater,
		ShutdownDeadline: 10 * time.Second,
	}, codec, store, registry, collector)

	if err := l.Start(ctx); err != nil {
		return err
	}

	purgeDone := runPurgeLoop(store, cfg.PurgeInterval())
	defer close(purgeDone)

	var metricsSrv *http.Server
	if addr := cmd.String("metrics-bind"); addr != "" {
		metricsSrv = startMetricsServer(addr, collector)
	}

	waitForSignal()

	log.Info().Msg("nalixd: shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(stopCtx)
	}
	return l.Stop(stopCtx)
}

func registerHandlers(registry *listener.HandlerRegistry) {
	// Application-level opcode handlers are registered by embedders of
	// this binary; nalixd itself ships no business-logic opcodes.
	_ = registry
}

func runPurgeLoop(store *admission.Store, interval time.Duration) chan struct{} {
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.Purge()
			case <-done:
				return
			}
		}
	}()
	return done
}

func startMetricsServer(addr string, collector *metrics.Collector) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("nalixd: metrics server failed")
		}
	}()
	return srv
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

func splitWhitelist(s string) []string {
	var out []string
	for _, addr := range strings.Split(s, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// initLog configures the global zerolog logger: human-readable console
// output for development, JSON for production.
func initLog(pretty bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
