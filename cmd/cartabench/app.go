package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"carta/hashing"
	"carta/internal/confloader"
	"carta/internal/workload"
	"carta/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build information, set via ldflags.
var Version = "dev"

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"buckets":      "buckets",
	"workers":      "workers",
	"keys":         "keys",
	"duration":     "duration",
	"hasher":       "hasher",
	"keygen":       "keygen",
	"poison":       "poison",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"metrics-addr": "metrics.addr",
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "cartabench",
		Usage:   "stress and inspect carta concurrent maps",
		Version: Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			stressCommand(),
			distCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", EnvVars: []string{"CARTA_CONFIG"}},
		&cli.IntFlag{Name: "buckets", Aliases: []string{"b"}, Usage: "fixed bucket count"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "concurrent goroutines"},
		&cli.IntFlag{Name: "keys", Aliases: []string{"n"}, Usage: "distinct keys to insert"},
		&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Usage: "length of the mixed workload"},
		&cli.StringFlag{Name: "hasher", Usage: "hash provider: " + strings.Join(hashing.Names, ", ")},
		&cli.StringFlag{Name: "keygen", Usage: "key generator: seq, snowflake"},
		&cli.StringFlag{Name: "poison", Usage: "poison policy: fail, reset"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error"},
		&cli.StringFlag{Name: "log-format", Usage: "json, console"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
	}
}

func loadConfig(c *cli.Context) (workload.Config, error) {
	cfg := workload.DefaultConfig()
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			overrides[key] = c.Value(flag)
		}
	}
	loader := confloader.NewLoader(confloader.WithConfigFile(c.String("config")))
	if err := loader.Load(&cfg, overrides); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg workload.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// setup loads configuration, builds the logger and the runner, and starts the metrics
// server when one is configured. The returned func stops it.
func setup(c *cli.Context) (*workload.Runner, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	r, err := workload.NewRunner(cfg, logger, reg)
	if err != nil {
		return nil, nil, err
	}
	reg.MustRegister(metrics.NewCollector("bench", r.Map()))

	stop := func() { _ = logger.Sync() }
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
		stop = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
			_ = logger.Sync()
		}
	}
	return r, stop, nil
}

func stressCommand() *cli.Command {
	return &cli.Command{
		Name:  "stress",
		Usage: "insert distinct keys concurrently, verify them, then run a mixed workload",
		Action: func(c *cli.Context) error {
			r, stop, err := setup(c)
			if err != nil {
				return err
			}
			defer stop()

			if err := r.Populate(); err != nil {
				return err
			}
			if err := r.Verify(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
			defer cancel()
			rep, err := r.Mixed(ctx)
			printReport(c.App.Writer, rep)
			return err
		},
	}
}

func distCommand() *cli.Command {
	return &cli.Command{
		Name:  "dist",
		Usage: "insert keys and print how they spread over the buckets",
		Action: func(c *cli.Context) error {
			r, stop, err := setup(c)
			if err != nil {
				return err
			}
			defer stop()

			if err := r.Populate(); err != nil {
				return err
			}
			s := r.Map().Stats()
			w := c.App.Writer
			fmt.Fprintf(w, "buckets:     %d\n", s.Buckets)
			fmt.Fprintf(w, "entries:     %d\n", s.Entries)
			fmt.Fprintf(w, "empty:       %d (%.1f%%)\n", s.EmptyBuckets, percent(s.EmptyBuckets, s.Buckets))
			fmt.Fprintf(w, "max/bucket:  %d\n", s.MaxBucketEntries)
			fmt.Fprintf(w, "mean/bucket: %.3f\n", float64(s.Entries)/float64(s.Buckets))
			return nil
		},
	}
}

func printReport(w io.Writer, rep workload.Report) {
	ops := make([]string, 0, len(rep.Ops))
	for op := range rep.Ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var total uint64
	for _, op := range ops {
		total += rep.Ops[op]
		fmt.Fprintf(w, "%-8s %d\n", op, rep.Ops[op])
	}
	var rate float64
	if rep.Elapsed > 0 {
		rate = float64(total) / rep.Elapsed.Seconds()
	}
	fmt.Fprintf(w, "total    %d in %s (%.0f ops/s)\n", total, rep.Elapsed.Round(time.Millisecond), rate)
	fmt.Fprintf(w, "hits     %d\n", rep.Hits)
	fmt.Fprintf(w, "errors   %d\n", rep.Errors)
	fmt.Fprintf(w, "entries  %d in %d buckets (max %d per bucket)\n",
		rep.Stats.Entries, rep.Stats.Buckets, rep.Stats.MaxBucketEntries)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
