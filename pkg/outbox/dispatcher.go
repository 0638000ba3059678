package outbox

import (
	"context"
	"sync"
	"time"

	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/metrics"
)

// DispatcherConfig — настройки Outbox Dispatcher.
type DispatcherConfig struct {
	// PollInterval — интервал между опросами таблицы outbox.
	PollInterval time.Duration

	// BatchSize — максимум событий, захватываемых за один опрос.
	BatchSize int

	// LeaseDuration — срок аренды захваченного события.
	LeaseDuration time.Duration

	// MaxAttempts — лимит попыток доставки до перевода в FAILED.
	MaxAttempts int

	// RetryBaseDelay, RetryMaxDelay, RetryJitter — параметры backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RetryJitter    time.Duration

	// StatsInterval — интервал публикации метрик очереди.
	// Ноль отключает сбор статистики.
	StatsInterval time.Duration
}

// DefaultDispatcherConfig возвращает конфигурацию по умолчанию.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval:   1 * time.Second,
		BatchSize:      100,
		LeaseDuration:  30 * time.Second,
		MaxAttempts:    8,
		RetryBaseDelay: 2 * time.Second,
		RetryMaxDelay:  5 * time.Minute,
		RetryJitter:    1 * time.Second,
		StatsInterval:  15 * time.Second,
	}
}

// Dispatcher захватывает готовые события outbox и доставляет их через
// Publisher. Любое количество Dispatcher-процессов работает конкурентно
// против одного хранилища: единственный примитив синхронизации —
// атомарный ClaimPending. Глобального порядка доставки между
// конкурентными воркерами нет.
type Dispatcher struct {
	repo      Repository
	publisher Publisher
	cfg       DispatcherConfig
	workerID  string
}

// NewDispatcher создаёт новый Dispatcher.
// workerID должен быть уникален среди конкурентных воркеров
// (например hostname + pid + индекс горутины).
func NewDispatcher(repo Repository, publisher Publisher, cfg DispatcherConfig, workerID string) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		workerID:  workerID,
	}
}

// Run запускает цикл доставки. Блокирует выполнение до отмены контекста.
// Отмена прекращает захват новых пачек; события, оставшиеся в PROCESSING,
// вернутся в оборот по истечении аренды.
func (d *Dispatcher) Run(ctx context.Context) {
	log := logger.With().Str("worker_id", d.workerID).Logger()
	log.Info().
		Dur("poll_interval", d.cfg.PollInterval).
		Int("batch_size", d.cfg.BatchSize).
		Dur("lease", d.cfg.LeaseDuration).
		Msg("Запуск Outbox Dispatcher")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	var statsCh <-chan time.Time
	if d.cfg.StatsInterval > 0 {
		statsTicker := time.NewTicker(d.cfg.StatsInterval)
		defer statsTicker.Stop()
		statsCh = statsTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Dispatcher")
			return
		case <-ticker.C:
			d.processBatch(ctx)
		case <-statsCh:
			d.publishStats(ctx)
		}
	}
}

// processBatch захватывает и доставляет одну пачку событий.
func (d *Dispatcher) processBatch(ctx context.Context) {
	log := logger.With().Str("worker_id", d.workerID).Logger()

	events, err := d.repo.ClaimPending(ctx, d.cfg.BatchSize, d.workerID, d.cfg.LeaseDuration)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка захвата событий outbox")
		return
	}

	if len(events) == 0 {
		return
	}

	log.Debug().Int("count", len(events)).Msg("Захвачена пачка событий outbox")

	for _, ev := range events {
		// Проверяем отмену между событиями: недоставленные вернутся
		// в оборот по истечении аренды
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.deliver(ctx, ev)
	}
}

// deliver доставляет одно событие и разрешает исход.
// На время доставки аренда поддерживается keeper-горутиной.
func (d *Dispatcher) deliver(ctx context.Context, ev *Event) {
	log := logger.With().
		Str("worker_id", d.workerID).
		Str("event_id", ev.ID).
		Str("event_type", ev.EventType).
		Logger()

	keeperCtx, stopKeeper := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.keepLease(keeperCtx, ev.ID)
	}()

	pubErr := d.publisher.Publish(ctx, ev)

	stopKeeper()
	wg.Wait()

	if pubErr == nil {
		ok, err := d.repo.MarkSent(ctx, ev.ID, d.workerID)
		if err != nil {
			log.Error().Err(err).Msg("Ошибка пометки события отправленным")
			return
		}
		if !ok {
			// Аренда истекла, событие перехвачено: наш успех устарел.
			// Дубликат доставки допустим при at-least-once семантике.
			log.Debug().Msg("Владение событием утрачено до MarkSent")
			metrics.OutboxDeliveries.WithLabelValues(d.workerID, string(OutcomeSkipped)).Inc()
			return
		}
		metrics.OutboxDeliveries.WithLabelValues(d.workerID, "sent").Inc()
		log.Debug().Msg("Событие доставлено")
		return
	}

	res, err := d.repo.MarkFailed(ctx, ev.ID, FailOptions{
		WorkerID:       d.workerID,
		Err:            pubErr,
		Retryable:      !IsPermanent(pubErr),
		MaxAttempts:    d.cfg.MaxAttempts,
		RetryBaseDelay: d.cfg.RetryBaseDelay,
		RetryMaxDelay:  d.cfg.RetryMaxDelay,
		RetryJitter:    d.cfg.RetryJitter,
	})
	if err != nil {
		log.Error().Err(err).Msg("Ошибка разрешения неудачной доставки")
		return
	}

	metrics.OutboxDeliveries.WithLabelValues(d.workerID, string(res.Outcome)).Inc()

	switch res.Outcome {
	case OutcomeRetried:
		log.Warn().
			Err(pubErr).
			Int("attempts", res.Attempts).
			Time("next_available_at", res.NextAvailableAt).
			Msg("Доставка не удалась, событие отложено")
	case OutcomeFailed:
		log.Error().
			Err(pubErr).
			Int("attempts", res.Attempts).
			Msg("Событие переведено в FAILED (dead letter)")
	case OutcomeSkipped:
		// Конкурентный воркер уже разрешил событие — не ошибка
		log.Debug().Msg("Событие уже разрешено другим воркером")
	}
}

// keepLease периодически продлевает аренду на время длительной доставки.
// Останавливается при отмене контекста или утрате владения.
func (d *Dispatcher) keepLease(ctx context.Context, eventID string) {
	interval := d.cfg.LeaseDuration / 3
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := d.repo.ExtendLease(ctx, eventID, d.workerID, d.cfg.LeaseDuration)
			if err != nil {
				logger.Warn().Err(err).
					Str("worker_id", d.workerID).
					Str("event_id", eventID).
					Msg("Ошибка продления аренды")
				continue
			}
			if !ok {
				// Владение утрачено, продлевать больше нечего
				return
			}
		}
	}
}

// publishStats выгружает состояние очереди в Prometheus.
func (d *Dispatcher) publishStats(ctx context.Context) {
	stats, err := d.repo.Stats(ctx, time.Now())
	if err != nil {
		logger.Warn().Err(err).Msg("Ошибка чтения статистики очереди outbox")
		return
	}

	metrics.OutboxDuePending.Set(float64(stats.DuePendingCount))
	metrics.OutboxOldestDueAge.Set(stats.OldestDuePendingAge.Seconds())
}
