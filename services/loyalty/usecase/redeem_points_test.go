package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/business-suite/pkg/usecase"
	"example.com/business-suite/services/loyalty/domain"
)

// =============================================================================
// Моки
// =============================================================================

// mockRepository — мок repository.Repository.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockRepository) RedeemPoints(ctx context.Context, accountID string, points int64, reason string) (*domain.LedgerEntry, int64, error) {
	args := m.Called(ctx, accountID, points, reason)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Get(1).(int64), args.Error(2)
}

// =============================================================================
// Тесты RedeemPointsHandler
// =============================================================================

func TestRedeemPointsHandler_Success(t *testing.T) {
	repo := new(mockRepository)
	handler := NewRedeemPointsHandler(repo)
	ctx := context.Background()

	entry := &domain.LedgerEntry{
		ID:          "entry-1",
		AccountID:   "acc-1",
		PointsDelta: -100,
		Reason:      "оплата заказа",
	}
	repo.On("RedeemPoints", ctx, "acc-1", int64(100), "оплата заказа").
		Return(entry, int64(400), nil)

	out, err := handler.Handle(ctx, RedeemPointsInput{
		AccountID: "acc-1",
		Points:    100,
		Reason:    "оплата заказа",
	})

	require.NoError(t, err)
	assert.Equal(t, "entry-1", out.EntryID)
	assert.Equal(t, int64(-100), out.PointsDelta)
	assert.Equal(t, int64(400), out.NewBalance)
	repo.AssertExpectations(t)
}

func TestRedeemPointsHandler_Validation(t *testing.T) {
	repo := new(mockRepository)
	handler := NewRedeemPointsHandler(repo)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RedeemPointsInput
		field string
	}{
		{"пустой account_id", RedeemPointsInput{Points: 100}, "account_id"},
		{"нулевые баллы", RedeemPointsInput{AccountID: "acc-1", Points: 0}, "points"},
		{"отрицательные баллы", RedeemPointsInput{AccountID: "acc-1", Points: -5}, "points"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Handle(ctx, tt.input)

			ve, ok := usecase.AsValidation(err)
			require.True(t, ok, "ожидается ошибка валидации")
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	// Репозиторий не вызывается при ошибке валидации
	repo.AssertNotCalled(t, "RedeemPoints")
}

func TestRedeemPointsHandler_InsufficientBalance(t *testing.T) {
	repo := new(mockRepository)
	handler := NewRedeemPointsHandler(repo)
	ctx := context.Background()

	// Нехватка баллов: списание не проходит, состояние не изменено
	repo.On("RedeemPoints", ctx, "acc-1", int64(1000), "").
		Return(nil, int64(0), domain.ErrInsufficientBalance)

	_, err := handler.Handle(ctx, RedeemPointsInput{
		AccountID: "acc-1",
		Points:    1000,
	})

	ce, ok := usecase.AsConflict(err)
	require.True(t, ok, "ожидается конфликт")
	assert.Equal(t, domain.CodeInsufficientBalance, ce.Code)
	repo.AssertExpectations(t)
}

func TestRedeemPointsHandler_RepositoryErrorPropagates(t *testing.T) {
	repo := new(mockRepository)
	handler := NewRedeemPointsHandler(repo)
	ctx := context.Background()

	dbErr := errors.New("deadlock found")
	repo.On("RedeemPoints", ctx, "acc-1", int64(100), "").
		Return(nil, int64(0), dbErr)

	_, err := handler.Handle(ctx, RedeemPointsInput{AccountID: "acc-1", Points: 100})

	assert.ErrorIs(t, err, dbErr)
	// Инфраструктурная ошибка не маскируется под конфликт
	_, ok := usecase.AsConflict(err)
	assert.False(t, ok)
}

func TestRedeemPointsHandler_IdempotencyKey(t *testing.T) {
	handler := NewRedeemPointsHandler(new(mockRepository))
	ctx := context.Background()

	t.Run("ключ с неймспейсом операции", func(t *testing.T) {
		key, ok := handler.IdempotencyKey(ctx, RedeemPointsInput{IdempotencyKey: "req-123"})
		assert.True(t, ok)
		assert.Equal(t, "loyalty:redeem:req-123", key)
	})

	t.Run("без ключа идемпотентность выключена", func(t *testing.T) {
		_, ok := handler.IdempotencyKey(ctx, RedeemPointsInput{})
		assert.False(t, ok)
	})
}
