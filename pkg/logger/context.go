package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// ctxKey — приватный тип ключей контекста для избежания коллизий.
type ctxKey string

const (
	// requestIDKey — ключ для хранения request_id в контексте.
	// Request ID идентифицирует входящий запрос через все слои.
	requestIDKey ctxKey = "request_id"

	// correlationIDKey — ключ для хранения correlation_id в контексте.
	// Correlation ID связывает запрос с порождёнными им событиями outbox.
	correlationIDKey ctxKey = "correlation_id"

	// tenantIDKey — ключ для хранения tenant_id в контексте.
	tenantIDKey ctxKey = "tenant_id"

	// loggerKey — ключ для хранения настроенного логгера в контексте.
	loggerKey ctxKey = "logger"
)

// WithRequestID добавляет request_id в контекст.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext извлекает request_id из контекста.
// Возвращает пустую строку, если request_id не установлен.
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithCorrelationID добавляет correlation_id в контекст.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext извлекает correlation_id из контекста.
// Возвращает пустую строку, если correlation_id не установлен.
func CorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// WithTenantID добавляет tenant_id в контекст.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantIDFromContext извлекает tenant_id из контекста.
func TenantIDFromContext(ctx context.Context) string {
	if tenantID, ok := ctx.Value(tenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}

// WithLogger добавляет настроенный логгер в контекст.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext извлекает логгер из контекста, автоматически добавляя
// request_id, correlation_id и tenant_id, если они там присутствуют.
// Если логгер не был добавлен в контекст явно — возвращает глобальный.
//
// Это основной способ получения логгера в обработчиках и воркерах:
//
//	log := logger.FromContext(ctx)
//	log.Info().Str("event_id", ev.ID).Msg("Событие доставлено")
func FromContext(ctx context.Context) zerolog.Logger {
	var l zerolog.Logger
	if ctxLogger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		l = ctxLogger
	} else {
		l = log
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		l = l.With().Str("request_id", requestID).Logger()
	}
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		l = l.With().Str("correlation_id", correlationID).Logger()
	}
	if tenantID := TenantIDFromContext(ctx); tenantID != "" {
		l = l.With().Str("tenant_id", tenantID).Logger()
	}

	return l
}

// Ctx возвращает указатель на логгер из контекста.
// Альтернатива FromContext, совместимая по стилю с zerolog.Ctx().
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}
