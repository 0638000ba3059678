// Suite Service — HTTP API бизнес-пакета (лояльность, пакеты услуг).
// Каждый use case выполняется через идемпотентный Executor: доменная
// запись и интеграционное событие коммитятся в одной транзакции (outbox),
// повторный запрос с тем же Idempotency-Key возвращает сохранённый результат.
// Доставку событий выполняет отдельный Dispatcher (services/dispatcher).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/business-suite/pkg/config"
	dbpkg "example.com/business-suite/pkg/db"
	"example.com/business-suite/pkg/healthcheck"
	"example.com/business-suite/pkg/idempotency"
	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/metrics"
	"example.com/business-suite/pkg/outbox"
	"example.com/business-suite/pkg/usecase"
	loyaltyrepo "example.com/business-suite/services/loyalty/repository"
	loyaltyuc "example.com/business-suite/services/loyalty/usecase"
	packagesrepo "example.com/business-suite/services/packages/repository"
	packagesuc "example.com/business-suite/services/packages/usecase"
	"example.com/business-suite/services/suite/internal/handler"
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
		Str("service", "suite").
		Str("env", cfg.App.Env).
		Msg("Запуск Suite Service")

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

	rdb := dbpkg.ConnectRedis(cfg.Redis)
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	cancel()
	logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Подключение к Redis установлено")

	// === Observability: Metrics ===

	readinessCheck := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckMySQL(ctx, db) },
		func(ctx context.Context) error { return healthcheck.CheckRedis(ctx, rdb) },
	)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			"suite",
			metrics.WithReadinessCheck(readinessCheck),
		)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Инициализация бизнес-логики ===

	outboxRepo := outbox.NewRepository(db)
	producer := outbox.NewProducer(outboxRepo)

	idemStore := idempotency.NewCachedStore(
		idempotency.NewStore(db),
		rdb,
		cfg.Idempotency.CacheTTL,
	)

	redeemExecutor := usecase.NewExecutor(
		"loyalty.redeem_points",
		loyaltyuc.NewRedeemPointsHandler(loyaltyrepo.NewRepository(db, producer)),
		idemStore,
	)
	consumeExecutor := usecase.NewExecutor(
		"packages.consume_units",
		packagesuc.NewConsumeUnitsHandler(packagesrepo.NewRepository(db, producer)),
		idemStore,
	)

	// === Настройка роутера и HTTP сервера ===

	router := handler.NewRouter(handler.RouterConfig{
		Handler: handler.NewHandler(redeemExecutor, consumeExecutor),
		Debug:   cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr()).Msg("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// === Graceful Shutdown ===

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Ошибка при остановке HTTP сервера")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
	}

	logger.Info().Msg("Suite Service остановлен")
}
