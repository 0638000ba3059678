// Dispatcher Service — доставка событий из таблицы outbox в Kafka.
// Запускает несколько конкурентных воркеров против одного хранилища:
// каждый захватывает пачку готовых событий под аренду, публикует их и
// фиксирует исход (SENT, повтор с backoff или терминальный FAILED).
// Процесс можно масштабировать горизонтально без координации.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"example.com/business-suite/pkg/circuitbreaker"
	"example.com/business-suite/pkg/config"
	dbpkg "example.com/business-suite/pkg/db"
	"example.com/business-suite/pkg/healthcheck"
	"example.com/business-suite/pkg/kafka"
	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/metrics"
	"example.com/business-suite/pkg/outbox"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Ошибка загрузки конфигурации")
	}

	// Инициализируем логгер
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})

	logger.Info().
		Str("service", "dispatcher").
		Str("env", cfg.App.Env).
		Int("workers", cfg.Outbox.WorkerCount).
		Msg("Запуск Dispatcher Service")

	// === Подключение к зависимостям ===

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		logger.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	defer func() {
		if err := dbpkg.CloseMySQL(db); err != nil {
			logger.Error().Err(err).Msg("Ошибка закрытия MySQL")
		}
	}()
	logger.Info().Msg("Подключение к MySQL установлено")

	kafkaProducer, err := kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
	if err != nil {
		logger.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
		}
	}()

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			"dispatcher",
			metrics.WithReadinessCheck(func(ctx context.Context) error {
				return healthcheck.CheckMySQL(ctx, db)
			}),
		)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Запуск воркеров ===

	repo := outbox.NewRepository(db)
	breaker := circuitbreaker.New("kafka-publisher")
	publisher := outbox.NewKafkaPublisher(kafkaProducer, cfg.Kafka.Topic, breaker)

	dispatcherCfg := outbox.DispatcherConfig{
		PollInterval:   cfg.Outbox.PollInterval,
		BatchSize:      cfg.Outbox.BatchSize,
		LeaseDuration:  cfg.Outbox.LeaseDuration,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
		RetryBaseDelay: cfg.Outbox.RetryBaseDelay,
		RetryMaxDelay:  cfg.Outbox.RetryMaxDelay,
		RetryJitter:    cfg.Outbox.RetryJitter,
		StatsInterval:  cfg.Outbox.StatsInterval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Outbox.WorkerCount; i++ {
		// worker_id уникален в пределах кластера: метрики очереди
		// публикует только нулевой воркер, остальные только доставляют.
		workerID := fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), i)

		workerCfg := dispatcherCfg
		if i > 0 {
			workerCfg.StatsInterval = 0
		}

		d := outbox.NewDispatcher(repo, publisher, workerCfg, workerID)

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run(ctx)
		}()
	}

	// === Graceful Shutdown ===

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Получен сигнал завершения, останавливаем воркеры...")

	cancel()
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
	}

	logger.Info().Msg("Dispatcher Service остановлен")
}
