package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/business-suite/pkg/usecase"
	"example.com/business-suite/services/packages/domain"
)

// =============================================================================
// Моки
// =============================================================================

// mockRepository — мок repository.Repository.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetPackage(ctx context.Context, id string) (*domain.ServicePackage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ServicePackage), args.Error(1)
}

func (m *mockRepository) ConsumeUnits(ctx context.Context, packageID string, units int64, reference string) (*domain.UsageRecord, int64, error) {
	args := m.Called(ctx, packageID, units, reference)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*domain.UsageRecord), args.Get(1).(int64), args.Error(2)
}

// =============================================================================
// Тесты ConsumeUnitsHandler
// =============================================================================

func TestConsumeUnitsHandler_Success(t *testing.T) {
	repo := new(mockRepository)
	handler := NewConsumeUnitsHandler(repo)
	ctx := context.Background()

	record := &domain.UsageRecord{
		ID:        "usage-1",
		PackageID: "pkg-1",
		UnitsUsed: 3,
		Reference: "visit-42",
	}
	repo.On("ConsumeUnits", ctx, "pkg-1", int64(3), "visit-42").
		Return(record, int64(7), nil)

	out, err := handler.Handle(ctx, ConsumeUnitsInput{
		PackageID: "pkg-1",
		UnitsUsed: 3,
		Reference: "visit-42",
	})

	require.NoError(t, err)
	assert.Equal(t, "usage-1", out.UsageID)
	assert.Equal(t, int64(3), out.UnitsUsed)
	assert.Equal(t, int64(7), out.RemainingUnits)
	repo.AssertExpectations(t)
}

func TestConsumeUnitsHandler_Validation(t *testing.T) {
	repo := new(mockRepository)
	handler := NewConsumeUnitsHandler(repo)
	ctx := context.Background()

	tests := []struct {
		name  string
		input ConsumeUnitsInput
		field string
	}{
		{"пустой package_id", ConsumeUnitsInput{UnitsUsed: 1}, "package_id"},
		{"нулевые единицы", ConsumeUnitsInput{PackageID: "pkg-1", UnitsUsed: 0}, "units_used"},
		{"отрицательные единицы", ConsumeUnitsInput{PackageID: "pkg-1", UnitsUsed: -1}, "units_used"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Handle(ctx, tt.input)

			ve, ok := usecase.AsValidation(err)
			require.True(t, ok, "ожидается ошибка валидации")
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	repo.AssertNotCalled(t, "ConsumeUnits")
}

func TestConsumeUnitsHandler_InsufficientUnits(t *testing.T) {
	repo := new(mockRepository)
	handler := NewConsumeUnitsHandler(repo)
	ctx := context.Background()

	// Остаток меньше запрошенного: списание отклоняется без мутаций
	repo.On("ConsumeUnits", ctx, "pkg-1", int64(10), "").
		Return(nil, int64(0), domain.ErrInsufficientUnits)

	_, err := handler.Handle(ctx, ConsumeUnitsInput{
		PackageID: "pkg-1",
		UnitsUsed: 10,
	})

	ce, ok := usecase.AsConflict(err)
	require.True(t, ok, "ожидается конфликт")
	assert.Equal(t, domain.CodeInsufficientUnits, ce.Code)
	repo.AssertExpectations(t)
}

func TestConsumeUnitsHandler_PackageNotFoundPropagates(t *testing.T) {
	repo := new(mockRepository)
	handler := NewConsumeUnitsHandler(repo)
	ctx := context.Background()

	repo.On("ConsumeUnits", ctx, "missing", int64(1), "").
		Return(nil, int64(0), domain.ErrPackageNotFound)

	_, err := handler.Handle(ctx, ConsumeUnitsInput{PackageID: "missing", UnitsUsed: 1})

	assert.ErrorIs(t, err, domain.ErrPackageNotFound)
	// not found — не конфликт и не ошибка валидации
	_, ok := usecase.AsConflict(err)
	assert.False(t, ok)
}

func TestConsumeUnitsHandler_IdempotencyKey(t *testing.T) {
	handler := NewConsumeUnitsHandler(new(mockRepository))
	ctx := context.Background()

	key, ok := handler.IdempotencyKey(ctx, ConsumeUnitsInput{IdempotencyKey: "req-7"})
	assert.True(t, ok)
	assert.Equal(t, "packages:consume:req-7", key)

	_, ok = handler.IdempotencyKey(ctx, ConsumeUnitsInput{})
	assert.False(t, ok)
}
