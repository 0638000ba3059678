// Package repository содержит GORM репозиторий программы лояльности.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/business-suite/pkg/outbox"
	"example.com/business-suite/services/loyalty/domain"
)

// =============================================================================
// GORM модели
// =============================================================================

// AccountModel — GORM модель для таблицы loyalty_accounts.
type AccountModel struct {
	ID                   string    `gorm:"column:id;type:varchar(36);primaryKey"`
	TenantID             string    `gorm:"column:tenant_id;type:varchar(36);not null;index:idx_loyalty_tenant"`
	CustomerID           string    `gorm:"column:customer_id;type:varchar(36);not null;index:idx_loyalty_customer"`
	CurrentPointsBalance int64     `gorm:"column:current_points_balance;not null;default:0"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "loyalty_accounts"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *AccountModel) toDomain() *domain.Account {
	return &domain.Account{
		ID:                   m.ID,
		TenantID:             m.TenantID,
		CustomerID:           m.CustomerID,
		CurrentPointsBalance: m.CurrentPointsBalance,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// LedgerEntryModel — GORM модель для таблицы loyalty_ledger.
type LedgerEntryModel struct {
	ID          string    `gorm:"column:id;type:varchar(36);primaryKey"`
	AccountID   string    `gorm:"column:account_id;type:varchar(36);not null;index:idx_ledger_account"`
	PointsDelta int64     `gorm:"column:points_delta;not null"`
	Reason      string    `gorm:"column:reason;type:varchar(255);not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntryModel) TableName() string {
	return "loyalty_ledger"
}

// =============================================================================
// Репозиторий
// =============================================================================

// Repository определяет операции над счетами лояльности.
type Repository interface {
	// GetAccount возвращает счёт по ID.
	GetAccount(ctx context.Context, id string) (*domain.Account, error)

	// RedeemPoints атомарно списывает points баллов со счёта:
	// блокирующее чтение счёта, проверка баланса, запись журнала,
	// обновление баланса и постановка события в outbox — в одной
	// транзакции. При нехватке баллов возвращает ErrInsufficientBalance,
	// не изменив ни журнал, ни баланс, ни outbox.
	RedeemPoints(ctx context.Context, accountID string, points int64, reason string) (*domain.LedgerEntry, int64, error)
}

// loyaltyRepository — GORM реализация Repository.
type loyaltyRepository struct {
	db       *gorm.DB
	producer *outbox.Producer
}

// NewRepository создаёт новый репозиторий лояльности.
func NewRepository(db *gorm.DB, producer *outbox.Producer) Repository {
	return &loyaltyRepository{db: db, producer: producer}
}

// GetAccount возвращает счёт по ID.
func (r *loyaltyRepository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var model AccountModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("ошибка чтения счёта лояльности: %w", err)
	}
	return model.toDomain(), nil
}

// RedeemPoints списывает баллы в одной транзакции с записью в outbox.
func (r *loyaltyRepository) RedeemPoints(ctx context.Context, accountID string, points int64, reason string) (*domain.LedgerEntry, int64, error) {
	var entry *domain.LedgerEntry
	var newBalance int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Блокирующее чтение: конкурентные списания сериализуются на строке счёта
		var account AccountModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", accountID).
			First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}

		// Проверка предусловия до любой мутации
		if account.CurrentPointsBalance < points {
			return domain.ErrInsufficientBalance
		}

		now := time.Now()
		newBalance = account.CurrentPointsBalance - points

		entryModel := &LedgerEntryModel{
			ID:          uuid.New().String(),
			AccountID:   accountID,
			PointsDelta: -points,
			Reason:      reason,
			CreatedAt:   now,
		}
		if err := tx.Create(entryModel).Error; err != nil {
			return err
		}

		if err := tx.Model(&AccountModel{}).
			Where("id = ?", accountID).
			Updates(map[string]any{
				"current_points_balance": newBalance,
				"updated_at":             now,
			}).Error; err != nil {
			return err
		}

		payload, err := json.Marshal(domain.PointsRedeemedEvent{
			EntryID:     entryModel.ID,
			AccountID:   accountID,
			TenantID:    account.TenantID,
			PointsDelta: -points,
			NewBalance:  newBalance,
			Reason:      reason,
		})
		if err != nil {
			return fmt.Errorf("ошибка сериализации события лояльности: %w", err)
		}

		// Событие становится видимым только вместе с коммитом списания
		if _, err := r.producer.Enqueue(ctx, tx, outbox.Message{
			EventType: domain.EventTypePointsRedeemed,
			TenantID:  account.TenantID,
			Payload:   payload,
		}); err != nil {
			return err
		}

		entry = &domain.LedgerEntry{
			ID:          entryModel.ID,
			AccountID:   accountID,
			PointsDelta: -points,
			Reason:      reason,
			CreatedAt:   now,
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return entry, newBalance, nil
}
