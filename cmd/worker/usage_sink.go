package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zeack/exchange-rate/internal/config"
	"github.com/zeack/exchange-rate/internal/db"
	"github.com/zeack/exchange-rate/internal/kafka"
	"github.com/zeack/exchange-rate/internal/logger"
	"github.com/zeack/exchange-rate/internal/metrics"
	"github.com/zeack/exchange-rate/internal/repository"
	"github.com/zeack/exchange-rate/internal/worker"
)

var metricsAddr string

var usageSinkCmd = &cobra.Command{
	Use:   "usage-sink",
	Short: "Copy usage.calls events from Kafka into ClickHouse",
	RunE:  runUsageSink,
}

func init() {
	usageSinkCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9102", "address for /metrics (empty disables)")
}

func runUsageSink(cmd *cobra.Command, args []string) error {
	// 1) config + logger
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Encoding)
	log := logger.Log
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) ClickHouse
	chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer func() { _ = chDB.Close() }()

	// 3) kafka consumer
	consumer := kafka.NewConsumer(cfg.Kafka)
	defer consumer.Close()

	w := worker.NewUsageSink(consumer, repository.NewCHCallsRepository(chDB), cfg.Worker.BatchSize, cfg.Worker.BatchWait, log)

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	log.Info("usage-sink started",
		zap.String("topic", consumer.Topic()),
		zap.String("group", cfg.Kafka.GroupID),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait))

	return w.Run(ctx)
}
