// Package repository содержит GORM репозиторий пакетов услуг.
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
	"example.com/business-suite/services/packages/domain"
)

// =============================================================================
// GORM модели
// =============================================================================

// PackageModel — GORM модель для таблицы service_packages.
type PackageModel struct {
	ID             string    `gorm:"column:id;type:varchar(36);primaryKey"`
	TenantID       string    `gorm:"column:tenant_id;type:varchar(36);not null;index:idx_packages_tenant"`
	CustomerID     string    `gorm:"column:customer_id;type:varchar(36);not null;index:idx_packages_customer"`
	RemainingUnits int64     `gorm:"column:remaining_units;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PackageModel) TableName() string {
	return "service_packages"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *PackageModel) toDomain() *domain.ServicePackage {
	return &domain.ServicePackage{
		ID:             m.ID,
		TenantID:       m.TenantID,
		CustomerID:     m.CustomerID,
		RemainingUnits: m.RemainingUnits,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// UsageRecordModel — GORM модель для таблицы package_usage.
type UsageRecordModel struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey"`
	PackageID string    `gorm:"column:package_id;type:varchar(36);not null;index:idx_usage_package"`
	UnitsUsed int64     `gorm:"column:units_used;not null"`
	Reference string    `gorm:"column:reference;type:varchar(100)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UsageRecordModel) TableName() string {
	return "package_usage"
}

// AuditEntryModel — GORM модель для таблицы package_audit_log.
type AuditEntryModel struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey"`
	TenantID  string    `gorm:"column:tenant_id;type:varchar(36);not null;index:idx_audit_tenant"`
	PackageID string    `gorm:"column:package_id;type:varchar(36);not null;index:idx_audit_package"`
	Action    string    `gorm:"column:action;type:varchar(50);not null"`
	Details   string    `gorm:"column:details;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AuditEntryModel) TableName() string {
	return "package_audit_log"
}

// =============================================================================
// Репозиторий
// =============================================================================

// Repository определяет операции над пакетами услуг.
type Repository interface {
	// GetPackage возвращает пакет по ID.
	GetPackage(ctx context.Context, id string) (*domain.ServicePackage, error)

	// ConsumeUnits атомарно списывает units единиц из пакета:
	// блокирующее чтение пакета, проверка остатка, запись использования,
	// запись аудита, обновление остатка и постановка события в outbox —
	// в одной транзакции. При нехватке единиц возвращает
	// ErrInsufficientUnits без какой-либо мутации.
	ConsumeUnits(ctx context.Context, packageID string, units int64, reference string) (*domain.UsageRecord, int64, error)
}

// packageRepository — GORM реализация Repository.
type packageRepository struct {
	db       *gorm.DB
	producer *outbox.Producer
}

// NewRepository создаёт новый репозиторий пакетов.
func NewRepository(db *gorm.DB, producer *outbox.Producer) Repository {
	return &packageRepository{db: db, producer: producer}
}

// GetPackage возвращает пакет по ID.
func (r *packageRepository) GetPackage(ctx context.Context, id string) (*domain.ServicePackage, error) {
	var model PackageModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPackageNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пакета услуг: %w", err)
	}
	return model.toDomain(), nil
}

// ConsumeUnits списывает единицы пакета в одной транзакции с аудитом и outbox.
func (r *packageRepository) ConsumeUnits(ctx context.Context, packageID string, units int64, reference string) (*domain.UsageRecord, int64, error) {
	var record *domain.UsageRecord
	var remaining int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pkg PackageModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", packageID).
			First(&pkg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPackageNotFound
			}
			return err
		}

		// Проверка предусловия до любой мутации: при конфликте транзакция
		// завершается без записи использования, аудита и события
		if pkg.RemainingUnits < units {
			return domain.ErrInsufficientUnits
		}

		now := time.Now()
		remaining = pkg.RemainingUnits - units

		usageModel := &UsageRecordModel{
			ID:        uuid.New().String(),
			PackageID: packageID,
			UnitsUsed: units,
			Reference: reference,
			CreatedAt: now,
		}
		if err := tx.Create(usageModel).Error; err != nil {
			return err
		}

		auditModel := &AuditEntryModel{
			ID:        uuid.New().String(),
			TenantID:  pkg.TenantID,
			PackageID: packageID,
			Action:    domain.AuditActionUnitsConsumed,
			Details:   fmt.Sprintf("списано %d единиц, остаток %d", units, remaining),
			CreatedAt: now,
		}
		if err := tx.Create(auditModel).Error; err != nil {
			return err
		}

		if err := tx.Model(&PackageModel{}).
			Where("id = ?", packageID).
			Updates(map[string]any{
				"remaining_units": remaining,
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}

		payload, err := json.Marshal(domain.UnitsConsumedEvent{
			UsageID:        usageModel.ID,
			PackageID:      packageID,
			TenantID:       pkg.TenantID,
			UnitsUsed:      units,
			RemainingUnits: remaining,
			Reference:      reference,
		})
		if err != nil {
			return fmt.Errorf("ошибка сериализации события пакета: %w", err)
		}

		if _, err := r.producer.Enqueue(ctx, tx, outbox.Message{
			EventType: domain.EventTypeUnitsConsumed,
			TenantID:  pkg.TenantID,
			Payload:   payload,
		}); err != nil {
			return err
		}

		record = &domain.UsageRecord{
			ID:        usageModel.ID,
			PackageID: packageID,
			UnitsUsed: units,
			Reference: reference,
			CreatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return record, remaining, nil
}
