package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/config"
	"github.com/02loveslollipop/shizuku-sos/services/sos/db"
	"github.com/02loveslollipop/shizuku-sos/services/sos/getobs"
	httpserver "github.com/02loveslollipop/shizuku-sos/services/sos/http"
	"github.com/02loveslollipop/shizuku-sos/services/sos/logging"
	"github.com/02loveslollipop/shizuku-sos/services/sos/metric"
	"github.com/02loveslollipop/shizuku-sos/services/sos/streaming"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL, cfg.StorageSRID, logger)
	if err != nil {
		logger.Fatal("db connection error", zap.Error(err))
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := metric.New(registry)
	if err != nil {
		logger.Fatal("metrics error", zap.Error(err))
	}

	sos := getobs.NewService(store, getobs.Options{
		Prefixes:  cfg.Prefixes,
		MaxValues: cfg.MaxValues,
		MaxSeries: cfg.MaxSeries,
		AxisOrder: cfg.AxisOrder(),
		Streaming: streaming.Options{
			Strategy:  cfg.Strategy,
			ChunkSize: cfg.ChunkSize,
			Encoding:  cfg.Encoding,
		},
	}, logger, metrics)

	srv := httpserver.New(cfg, store, sos, registry, logger)
	logger.Info("SOS API listening",
		zap.String("addr", cfg.ListenAddr()),
		zap.String("strategy", string(cfg.Strategy)),
		zap.Int("chunk_size", cfg.ChunkSize))

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
