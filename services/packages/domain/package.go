// Package domain содержит бизнес-сущности предоплаченных пакетов услуг.
package domain

import "time"

// ServicePackage — предоплаченный пакет единиц услуги (занятия, визиты).
type ServicePackage struct {
	ID             string    // UUID пакета
	TenantID       string    // Тенант-владелец
	CustomerID     string    // Клиент
	RemainingUnits int64     // Остаток единиц
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UsageRecord — запись списания единиц пакета.
type UsageRecord struct {
	ID        string    // UUID записи
	PackageID string    // Пакет
	UnitsUsed int64     // Списано единиц
	Reference string    // Ссылка на визит/занятие (опционально)
	CreatedAt time.Time
}

// AuditEntry — запись аудита операций над пакетами.
// Пишется в той же транзакции, что и само списание.
type AuditEntry struct {
	ID        string    // UUID записи
	TenantID  string    // Тенант
	PackageID string    // Пакет
	Action    string    // Действие (units_consumed)
	Details   string    // Человекочитаемое описание
	CreatedAt time.Time
}

// UnitsConsumedEvent — интеграционное событие списания единиц.
type UnitsConsumedEvent struct {
	UsageID        string `json:"usage_id"`
	PackageID      string `json:"package_id"`
	TenantID       string `json:"tenant_id"`
	UnitsUsed      int64  `json:"units_used"`
	RemainingUnits int64  `json:"remaining_units"`
	Reference      string `json:"reference,omitempty"`
}

// EventTypeUnitsConsumed — тип события списания единиц пакета.
const EventTypeUnitsConsumed = "package.units_consumed"

// AuditActionUnitsConsumed — действие аудита для списания единиц.
const AuditActionUnitsConsumed = "units_consumed"
