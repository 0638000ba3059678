// Package handler содержит HTTP обработчики use case бизнес-пакета.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	loyaltyuc "example.com/business-suite/services/loyalty/usecase"
	packagesuc "example.com/business-suite/services/packages/usecase"
)

// headerIdempotencyKey — заголовок с ключом идемпотентности запроса.
const headerIdempotencyKey = "Idempotency-Key"

// Executor — контракт идемпотентного исполнителя use case.
// Интерфейс для тестируемости (Dependency Inversion).
type Executor[I, O any] interface {
	Execute(ctx context.Context, input I) (O, error)
}

// Handler — HTTP обработчики use case.
type Handler struct {
	redeemPoints Executor[loyaltyuc.RedeemPointsInput, loyaltyuc.RedeemPointsOutput]
	consumeUnits Executor[packagesuc.ConsumeUnitsInput, packagesuc.ConsumeUnitsOutput]
}

// NewHandler создаёт HTTP обработчики.
func NewHandler(
	redeemPoints Executor[loyaltyuc.RedeemPointsInput, loyaltyuc.RedeemPointsOutput],
	consumeUnits Executor[packagesuc.ConsumeUnitsInput, packagesuc.ConsumeUnitsOutput],
) *Handler {
	return &Handler{
		redeemPoints: redeemPoints,
		consumeUnits: consumeUnits,
	}
}

// RedeemPoints обрабатывает POST /v1/loyalty/redeem.
func (h *Handler) RedeemPoints(c *gin.Context) {
	var input loyaltyuc.RedeemPointsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	input.IdempotencyKey = c.GetHeader(headerIdempotencyKey)

	output, err := h.redeemPoints.Execute(c.Request.Context(), input)
	if err != nil {
		HandleUseCaseError(c, err, "RedeemPoints")
		return
	}

	c.JSON(http.StatusOK, output)
}

// ConsumeUnits обрабатывает POST /v1/packages/consume.
func (h *Handler) ConsumeUnits(c *gin.Context) {
	var input packagesuc.ConsumeUnitsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err)
		return
	}
	input.IdempotencyKey = c.GetHeader(headerIdempotencyKey)

	output, err := h.consumeUnits.Execute(c.Request.Context(), input)
	if err != nil {
		HandleUseCaseError(c, err, "ConsumeUnits")
		return
	}

	c.JSON(http.StatusOK, output)
}
