// Package usecase содержит обработчики use case пакетов услуг.
package usecase

import (
	"context"
	"errors"
	"fmt"

	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/usecase"
	"example.com/business-suite/services/packages/domain"
	"example.com/business-suite/services/packages/repository"
)

// ConsumeUnitsInput — запрос на списание единиц пакета.
type ConsumeUnitsInput struct {
	IdempotencyKey string `json:"-"`          // Ключ идемпотентности из заголовка запроса
	PackageID      string `json:"package_id"` // Пакет услуг
	UnitsUsed      int64  `json:"units_used"` // Количество списываемых единиц (> 0)
	Reference      string `json:"reference"`  // Ссылка на визит/занятие
}

// ConsumeUnitsOutput — результат списания единиц.
type ConsumeUnitsOutput struct {
	UsageID        string `json:"usage_id"`        // Запись использования
	PackageID      string `json:"package_id"`      // Пакет
	UnitsUsed      int64  `json:"units_used"`      // Списано единиц
	RemainingUnits int64  `json:"remaining_units"` // Остаток после списания
}

// ConsumeUnitsHandler — обработчик списания единиц пакета.
type ConsumeUnitsHandler struct {
	repo repository.Repository
}

// NewConsumeUnitsHandler создаёт обработчик списания единиц.
func NewConsumeUnitsHandler(repo repository.Repository) *ConsumeUnitsHandler {
	return &ConsumeUnitsHandler{repo: repo}
}

// IdempotencyKey выводит ключ идемпотентности из запроса.
func (h *ConsumeUnitsHandler) IdempotencyKey(_ context.Context, in ConsumeUnitsInput) (string, bool) {
	if in.IdempotencyKey == "" {
		return "", false
	}
	return "packages:consume:" + in.IdempotencyKey, true
}

// Handle списывает единицы из пакета.
func (h *ConsumeUnitsHandler) Handle(ctx context.Context, in ConsumeUnitsInput) (ConsumeUnitsOutput, error) {
	if in.PackageID == "" {
		return ConsumeUnitsOutput{}, usecase.NewValidation("package_id", "обязательное поле")
	}
	if in.UnitsUsed <= 0 {
		return ConsumeUnitsOutput{}, usecase.NewValidation("units_used", "должно быть больше нуля")
	}

	record, remaining, err := h.repo.ConsumeUnits(ctx, in.PackageID, in.UnitsUsed, in.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientUnits) {
			return ConsumeUnitsOutput{}, usecase.NewConflict(domain.CodeInsufficientUnits,
				fmt.Sprintf("недостаточно единиц для списания %d", in.UnitsUsed))
		}
		return ConsumeUnitsOutput{}, err
	}

	l := logger.FromContext(ctx)
	l.Info().
		Str("package_id", in.PackageID).
		Int64("units_used", in.UnitsUsed).
		Int64("remaining_units", remaining).
		Msg("Единицы пакета списаны")

	return ConsumeUnitsOutput{
		UsageID:        record.ID,
		PackageID:      record.PackageID,
		UnitsUsed:      record.UnitsUsed,
		RemainingUnits: remaining,
	}, nil
}
