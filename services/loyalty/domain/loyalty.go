// Package domain содержит бизнес-сущности программы лояльности.
package domain

import "time"

// Account — счёт лояльности клиента в рамках тенанта.
type Account struct {
	ID                   string    // UUID счёта
	TenantID             string    // Тенант-владелец
	CustomerID           string    // Клиент
	CurrentPointsBalance int64     // Текущий баланс баллов
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LedgerEntry — запись журнала движения баллов.
// Журнал append-only: баланс счёта — производная от суммы записей.
type LedgerEntry struct {
	ID          string    // UUID записи
	AccountID   string    // Счёт
	PointsDelta int64     // Изменение баланса (отрицательное при списании)
	Reason      string    // Причина операции
	CreatedAt   time.Time
}

// PointsRedeemedEvent — интеграционное событие списания баллов.
// Публикуется через outbox в той же транзакции, что и запись журнала.
type PointsRedeemedEvent struct {
	EntryID     string `json:"entry_id"`
	AccountID   string `json:"account_id"`
	TenantID    string `json:"tenant_id"`
	PointsDelta int64  `json:"points_delta"`
	NewBalance  int64  `json:"new_balance"`
	Reason      string `json:"reason,omitempty"`
}

// EventTypePointsRedeemed — тип события списания баллов.
const EventTypePointsRedeemed = "loyalty.points_redeemed"
