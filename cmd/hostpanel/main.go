package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/hostpanel/internal/collector"
	"github.com/HerbHall/hostpanel/internal/config"
	"github.com/HerbHall/hostpanel/internal/frame"
	"github.com/HerbHall/hostpanel/internal/scheduler"
	"github.com/HerbHall/hostpanel/internal/server"
	"github.com/HerbHall/hostpanel/internal/telemetry"
	"github.com/HerbHall/hostpanel/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	printConfig := flag.Bool("print-config", false, "print the effective configuration as YAML and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg.AllSettings())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	settings, err := cfg.Settings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(settings.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("hostpanel starting",
		zap.String("version", version.Short()),
		zap.String("config", cfg.ConfigFileUsed()),
	)

	loc, err := settings.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}

	sink, err := buildSink(settings, logger)
	if err != nil {
		logger.Fatal("failed to build transport", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(reg)

	coll := collector.New(buildSources(settings, defaultHostDeps(settings)), collectorOptions(settings), logger.Named("collector"))
	sched := scheduler.New(coll, frame.NewAssembler(frame.MetricFields, loc), sink, schedulerOptions(settings), logger.Named("scheduler"), metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		cyc := sched.RunOnce(ctx)
		if !cyc.OK() {
			logger.Error("cycle failed", zap.String("outcome", cyc.Outcome()), zap.Error(cyc.Err))
			logger.Sync()
			os.Exit(1)
		}
		return
	}

	var srv *server.Server
	if settings.Server.Addr != "" {
		srv = server.New(settings.Server.Addr, sched, reg, logger.Named("server"))
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("server error", zap.Error(err))
			}
		}()
	}

	logger.Info("hostpanel ready",
		zap.String("endpoint", sink.Endpoint()),
		zap.Duration("interval", settings.Interval),
	)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", zap.Error(err))
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}

	logger.Info("hostpanel stopped")
}
