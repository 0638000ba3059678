package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/usecase"
	loyaltydomain "example.com/business-suite/services/loyalty/domain"
	packagesdomain "example.com/business-suite/services/packages/domain"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`           // Машиночитаемый код
	Message string `json:"message"`         // Человекочитаемое описание
	Field   string `json:"field,omitempty"` // Поле с ошибкой (для валидации)
}

// HandleUseCaseError преобразует ошибку use case в HTTP ответ.
// Используется всеми handlers для единообразной обработки ошибок.
func HandleUseCaseError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	// Ошибка валидации — 400, повторять бессмысленно
	if ve, ok := usecase.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: ve.Message,
			Field:   ve.Field,
		})
		return
	}

	// Бизнес-конфликт — 409 с машиночитаемым кодом
	if ce, ok := usecase.AsConflict(err); ok {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   ce.Code,
			Message: ce.Message,
		})
		return
	}

	// Доменные not found — 404
	if errors.Is(err, loyaltydomain.ErrAccountNotFound) ||
		errors.Is(err, packagesdomain.ErrPackageNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
		return
	}

	log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Внутренняя ошибка сервера",
	})
}

// respondBadRequest возвращает 400 для некорректного JSON тела.
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}
