package outbox

import "time"

// EventModel — GORM модель для таблицы outbox_events.
// Составной индекс (status, available_at) обслуживает выборку готовых
// событий в ClaimPending и подсчёт в QueueStats.
type EventModel struct {
	ID            string     `gorm:"column:id;type:varchar(36);primaryKey"`
	TenantID      string     `gorm:"column:tenant_id;type:varchar(36);not null;index:idx_outbox_tenant"`
	EventType     string     `gorm:"column:event_type;type:varchar(100);not null"`
	Payload       []byte     `gorm:"column:payload;type:json;not null"`
	CorrelationID *string    `gorm:"column:correlation_id;type:varchar(100)"`
	Status        string     `gorm:"column:status;type:varchar(16);not null;index:idx_outbox_due,priority:1"`
	AvailableAt   time.Time  `gorm:"column:available_at;not null;index:idx_outbox_due,priority:2"`
	Attempts      int        `gorm:"column:attempts;not null;default:0"`
	LockedBy      *string    `gorm:"column:locked_by;type:varchar(100)"`
	LockedUntil   *time.Time `gorm:"column:locked_until"`
	LastError     *string    `gorm:"column:last_error;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (EventModel) TableName() string {
	return "outbox_events"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *EventModel) toDomain() *Event {
	return &Event{
		ID:            m.ID,
		TenantID:      m.TenantID,
		EventType:     m.EventType,
		Payload:       m.Payload,
		CorrelationID: m.CorrelationID,
		Status:        Status(m.Status),
		AvailableAt:   m.AvailableAt,
		Attempts:      m.Attempts,
		LockedBy:      m.LockedBy,
		LockedUntil:   m.LockedUntil,
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// modelFromDomain конвертирует доменную сущность в GORM модель.
func modelFromDomain(ev *Event) *EventModel {
	return &EventModel{
		ID:            ev.ID,
		TenantID:      ev.TenantID,
		EventType:     ev.EventType,
		Payload:       ev.Payload,
		CorrelationID: ev.CorrelationID,
		Status:        string(ev.Status),
		AvailableAt:   ev.AvailableAt,
		Attempts:      ev.Attempts,
		LockedBy:      ev.LockedBy,
		LockedUntil:   ev.LockedUntil,
		LastError:     ev.LastError,
		CreatedAt:     ev.CreatedAt,
		UpdatedAt:     ev.UpdatedAt,
	}
}
