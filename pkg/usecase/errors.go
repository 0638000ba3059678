package usecase

import (
	"errors"
	"fmt"
)

// ValidationError — некорректный или неполный ввод.
// Возвращается вызывающей стороне синхронно и никогда не повторяется.
type ValidationError struct {
	Field   string // Поле с ошибкой (опционально)
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("некорректный ввод: %s — %s", e.Field, e.Message)
	}
	return fmt.Sprintf("некорректный ввод: %s", e.Message)
}

// NewValidation создаёт ValidationError для поля field.
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AsValidation извлекает ValidationError из цепочки ошибок.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// ConflictError — нарушено бизнес-предусловие (например, недостаточно
// баллов или единиц пакета). Обработчик обязан обнаружить конфликт до
// любой мутации состояния и до постановки события в outbox.
type ConflictError struct {
	Code    string // Машиночитаемый код (LOYALTY_INSUFFICIENT_BALANCE и т.д.)
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("конфликт %s: %s", e.Code, e.Message)
}

// NewConflict создаёт ConflictError с машиночитаемым кодом.
func NewConflict(code, message string) error {
	return &ConflictError{Code: code, Message: message}
}

// AsConflict извлекает ConflictError из цепочки ошибок.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	ok := errors.As(err, &ce)
	return ce, ok
}
