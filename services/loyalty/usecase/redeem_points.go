// Package usecase содержит обработчики use case программы лояльности.
package usecase

import (
	"context"
	"errors"
	"fmt"

	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/usecase"
	"example.com/business-suite/services/loyalty/domain"
	"example.com/business-suite/services/loyalty/repository"
)

// RedeemPointsInput — запрос на списание баллов.
type RedeemPointsInput struct {
	IdempotencyKey string `json:"-"`          // Ключ идемпотентности из заголовка запроса
	AccountID      string `json:"account_id"` // Счёт лояльности
	Points         int64  `json:"points"`     // Количество списываемых баллов (> 0)
	Reason         string `json:"reason"`     // Причина списания
}

// RedeemPointsOutput — результат списания баллов.
type RedeemPointsOutput struct {
	EntryID     string `json:"entry_id"`     // Запись журнала
	AccountID   string `json:"account_id"`   // Счёт
	PointsDelta int64  `json:"points_delta"` // Применённое изменение (отрицательное)
	NewBalance  int64  `json:"new_balance"`  // Баланс после списания
}

// RedeemPointsHandler — обработчик списания баллов.
// Выполняется под Executor: повтор запроса с тем же ключом
// идемпотентности вернёт сохранённый результат без повторного списания.
type RedeemPointsHandler struct {
	repo repository.Repository
}

// NewRedeemPointsHandler создаёт обработчик списания баллов.
func NewRedeemPointsHandler(repo repository.Repository) *RedeemPointsHandler {
	return &RedeemPointsHandler{repo: repo}
}

// IdempotencyKey выводит ключ идемпотентности из запроса.
// Запрос без ключа выполняется без идемпотентной защиты.
func (h *RedeemPointsHandler) IdempotencyKey(_ context.Context, in RedeemPointsInput) (string, bool) {
	if in.IdempotencyKey == "" {
		return "", false
	}
	return "loyalty:redeem:" + in.IdempotencyKey, true
}

// Handle списывает баллы со счёта.
func (h *RedeemPointsHandler) Handle(ctx context.Context, in RedeemPointsInput) (RedeemPointsOutput, error) {
	if in.AccountID == "" {
		return RedeemPointsOutput{}, usecase.NewValidation("account_id", "обязательное поле")
	}
	if in.Points <= 0 {
		return RedeemPointsOutput{}, usecase.NewValidation("points", "должно быть больше нуля")
	}

	entry, newBalance, err := h.repo.RedeemPoints(ctx, in.AccountID, in.Points, in.Reason)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return RedeemPointsOutput{}, usecase.NewConflict(domain.CodeInsufficientBalance,
				fmt.Sprintf("недостаточно баллов для списания %d", in.Points))
		}
		return RedeemPointsOutput{}, err
	}

	l := logger.FromContext(ctx)
	l.Info().
		Str("account_id", in.AccountID).
		Int64("points", in.Points).
		Int64("new_balance", newBalance).
		Msg("Баллы списаны")

	return RedeemPointsOutput{
		EntryID:     entry.ID,
		AccountID:   entry.AccountID,
		PointsDelta: entry.PointsDelta,
		NewBalance:  newBalance,
	}, nil
}
