// Package circuitbreaker предоставляет Circuit Breaker для защиты от каскадных сбоев.
// Используется Outbox Dispatcher: при недоступности брокера доставка
// отклоняется мгновенно, события уходят в backoff без ожидания таймаутов.
//
// Состояния Circuit Breaker:
//   - Closed: нормальная работа, вызовы проходят
//   - Open: получатель недоступен, вызовы отклоняются мгновенно
//   - Half-Open: пробный период, пропускаем часть вызовов для проверки восстановления
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/business-suite/pkg/logger"
)

// ErrOpen возвращается, когда breaker открыт и вызов отклонён без выполнения.
var ErrOpen = errors.New("circuit breaker открыт")

// Settings — настройки Circuit Breaker.
type Settings struct {
	MaxRequests  uint32        // Макс. вызовов в Half-Open состоянии
	Interval     time.Duration // Интервал сброса счётчика в Closed
	Timeout      time.Duration // Время в Open до перехода в Half-Open
	FailureRatio float64       // Доля ошибок для перехода в Open
	MinRequests  uint32        // Мин. вызовов для расчёта ratio
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Breaker — обёртка над gobreaker с логированием смены состояний.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// New создаёт новый Circuit Breaker с настройками по умолчанию.
func New(name string) *Breaker {
	return NewWithSettings(name, DefaultSettings())
}

// NewWithSettings создаёт Circuit Breaker с пользовательскими настройками.
func NewWithSettings(name string, s Settings) *Breaker {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		// Открываем breaker, если доля ошибок >= FailureRatio
		// при количестве вызовов >= MinRequests.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},

		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log := logger.With().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Logger()

			switch to {
			case gobreaker.StateOpen:
				log.Warn().Msg("Circuit Breaker открыт — получатель недоступен")
			case gobreaker.StateHalfOpen:
				log.Info().Msg("Circuit Breaker полуоткрыт — пробуем восстановить")
			case gobreaker.StateClosed:
				log.Info().Msg("Circuit Breaker закрыт — получатель восстановлен")
			}
		},
	})

	return &Breaker{cb: cb, name: name}
}

// Execute выполняет fn под защитой breaker.
// При открытом breaker возвращает ErrOpen, не вызывая fn.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// Name возвращает имя breaker.
func (b *Breaker) Name() string {
	return b.name
}
