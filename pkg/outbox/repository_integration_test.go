//go:build integration

// Package outbox — интеграционные тесты репозитория outbox.
// Требует: MySQL (настройки из .env).
// Запуск: go test -tags=integration -v ./pkg/outbox/...
package outbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// Инфраструктура тестов
// =============================================================================

var testDB *gorm.DB

// mysqlDSN собирает DSN из переменных .env
func mysqlDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		os.Getenv("MYSQL_USER"), os.Getenv("MYSQL_PASSWORD"),
		os.Getenv("MYSQL_HOST"), os.Getenv("MYSQL_PORT"), os.Getenv("MYSQL_DATABASE"))
}

func TestMain(m *testing.M) {
	// Загружаем .env из корня проекта
	_ = godotenv.Load("../../.env")

	var err error
	testDB, err = gorm.Open(mysql.Open(mysqlDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Printf("Ошибка подключения к MySQL: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.AutoMigrate(&EventModel{}); err != nil {
		fmt.Printf("Ошибка миграции outbox_events: %v\n", err)
		os.Exit(1)
	}

	// Cleanup от предыдущих запусков
	testDB.Exec("DELETE FROM outbox_events WHERE tenant_id LIKE 'tenant-test-%'")

	code := m.Run()

	// Cleanup после тестов
	testDB.Exec("DELETE FROM outbox_events WHERE tenant_id LIKE 'tenant-test-%'")

	os.Exit(code)
}

// newTestRepo создаёт репозиторий с подменяемыми часами.
// Возвращает указатель на время: тесты двигают его для симуляции
// истечения аренды без реального ожидания.
func newTestRepo() (*repository, *time.Time) {
	now := time.Now().Truncate(time.Second)
	r := &repository{db: testDB, now: func() time.Time { return now }}
	return r, &now
}

// generateTestID создаёт уникальный ID для теста.
func generateTestID(prefix string) string {
	return prefix + "-test-" + uuid.New().String()[:8]
}

// insertPending вставляет готовое PENDING событие напрямую.
func insertPending(t *testing.T, tenantID string, availableAt time.Time) string {
	t.Helper()

	id := uuid.New().String()
	err := testDB.Create(&EventModel{
		ID:          id,
		TenantID:    tenantID,
		EventType:   "loyalty.points_redeemed",
		Payload:     []byte(`{"points":100}`),
		Status:      string(StatusPending),
		AvailableAt: availableAt,
	}).Error
	require.NoError(t, err)
	return id
}

// loadEvent читает событие из БД.
func loadEvent(t *testing.T, id string) *EventModel {
	t.Helper()

	var m EventModel
	require.NoError(t, testDB.Where("id = ?", id).First(&m).Error)
	return &m
}

// =============================================================================
// Тесты Enqueue
// =============================================================================

func TestRepository_Enqueue_CommittedWithTransaction(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	ev := &Event{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		EventType:   "package.units_consumed",
		Payload:     []byte(`{"units":3}`),
		Status:      StatusPending,
		AvailableAt: *now,
	}

	err := testDB.Transaction(func(tx *gorm.DB) error {
		return repo.Enqueue(ctx, tx, ev)
	})
	require.NoError(t, err)

	saved := loadEvent(t, ev.ID)
	assert.Equal(t, string(StatusPending), saved.Status)
	assert.Equal(t, tenantID, saved.TenantID)
	assert.Equal(t, 0, saved.Attempts)
}

func TestRepository_Enqueue_RolledBackWithTransaction(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	ev := &Event{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		EventType:   "package.units_consumed",
		Payload:     []byte(`{"units":3}`),
		Status:      StatusPending,
		AvailableAt: *now,
	}

	// Откат бизнес-транзакции откатывает и событие: dual write исключён
	rollback := errors.New("бизнес-изменение не прошло")
	err := testDB.Transaction(func(tx *gorm.DB) error {
		if err := repo.Enqueue(ctx, tx, ev); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	var count int64
	testDB.Model(&EventModel{}).Where("id = ?", ev.ID).Count(&count)
	assert.Equal(t, int64(0), count, "событие не должно пережить откат транзакции")
}

func TestRepository_Enqueue_NilTransaction(t *testing.T) {
	repo, _ := newTestRepo()

	err := repo.Enqueue(context.Background(), nil, &Event{ID: uuid.New().String()})

	assert.Error(t, err)
}

// =============================================================================
// Тесты ClaimPending
// =============================================================================

func TestRepository_ClaimPending_TransitionsToProcessing(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))

	events, err := repo.ClaimPending(ctx, 10, "worker-1", 30*time.Second)
	require.NoError(t, err)

	claimed := findByID(events, id)
	require.NotNil(t, claimed, "готовое событие должно быть захвачено")
	assert.Equal(t, StatusProcessing, claimed.Status)
	assert.Equal(t, "worker-1", *claimed.LockedBy)

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusProcessing), saved.Status)
	assert.Equal(t, "worker-1", *saved.LockedBy)
	assert.True(t, saved.LockedUntil.After(*now), "аренда должна быть в будущем")
}

func TestRepository_ClaimPending_SkipsFutureEvents(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	// available_at в будущем — событие ещё не готово
	id := insertPending(t, tenantID, now.Add(time.Hour))

	events, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	assert.Nil(t, findByID(events, id), "событие с будущим available_at не захватывается")

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusPending), saved.Status)
}

func TestRepository_ClaimPending_ExclusiveOwnership(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))

	// Первый воркер захватывает событие
	events, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, findByID(events, id))

	// Второй воркер при живой аренде его не видит
	events, err = repo.ClaimPending(ctx, 100, "worker-2", 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, findByID(events, id), "PROCESSING с живой арендой недоступно для захвата")
}

func TestRepository_ClaimPending_ReclaimsExpiredLease(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))

	events, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, findByID(events, id))

	// Симулируем смерть воркера: двигаем часы за границу аренды
	*now = now.Add(time.Minute)

	events, err = repo.ClaimPending(ctx, 100, "worker-2", 30*time.Second)
	require.NoError(t, err)

	reclaimed := findByID(events, id)
	require.NotNil(t, reclaimed, "событие с истёкшей арендой должно быть перехвачено")
	assert.Equal(t, "worker-2", *reclaimed.LockedBy)

	saved := loadEvent(t, id)
	assert.Equal(t, "worker-2", *saved.LockedBy)
}

func TestRepository_ClaimPending_OrderedByAvailableAt(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	older := insertPending(t, tenantID, now.Add(-2*time.Hour))
	newer := insertPending(t, tenantID, now.Add(-time.Hour))

	events, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		if ev.TenantID == tenantID {
			got = append(got, ev.ID)
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, []string{older, newer}, got, "захват идёт в порядке available_at")
}

func TestRepository_ClaimPending_RespectsLimit(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	for i := 0; i < 5; i++ {
		insertPending(t, tenantID, now.Add(-time.Minute))
	}

	events, err := repo.ClaimPending(ctx, 2, "worker-1", 30*time.Second)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(events), 2)
}

// =============================================================================
// Тесты MarkSent / ExtendLease
// =============================================================================

func TestRepository_MarkSent_Success(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))
	_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	ok, err := repo.MarkSent(ctx, id, "worker-1")
	require.NoError(t, err)
	assert.True(t, ok)

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusSent), saved.Status)
	assert.Nil(t, saved.LockedBy, "блокировка должна быть снята")
	assert.Nil(t, saved.LockedUntil)
}

func TestRepository_MarkSent_LostOwnership(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))
	_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	// Событие перехвачено после истечения аренды
	*now = now.Add(time.Minute)
	_, err = repo.ClaimPending(ctx, 100, "worker-2", 30*time.Second)
	require.NoError(t, err)

	// Устаревший успех первого воркера не воскрешает строку
	ok, err := repo.MarkSent(ctx, id, "worker-1")
	require.NoError(t, err)
	assert.False(t, ok)

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusProcessing), saved.Status)
	assert.Equal(t, "worker-2", *saved.LockedBy)
}

func TestRepository_ExtendLease(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))
	_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	before := loadEvent(t, id).LockedUntil

	*now = now.Add(10 * time.Second)
	ok, err := repo.ExtendLease(ctx, id, "worker-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	after := loadEvent(t, id).LockedUntil
	assert.True(t, after.After(*before), "аренда должна продлиться")

	// Чужой воркер продлить не может
	ok, err = repo.ExtendLease(ctx, id, "worker-2", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// Тесты MarkFailed
// =============================================================================

func markFailedOpts(workerID string, retryable bool) FailOptions {
	return FailOptions{
		WorkerID:       workerID,
		Err:            errors.New("kafka unavailable"),
		Retryable:      retryable,
		MaxAttempts:    3,
		RetryBaseDelay: 2 * time.Second,
		RetryMaxDelay:  5 * time.Minute,
		RetryJitter:    0, // без джиттера — детерминированные проверки
	}
}

func TestRepository_MarkFailed_SchedulesRetry(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))
	_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	res, err := repo.MarkFailed(ctx, id, markFailedOpts("worker-1", true))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRetried, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	// Первая попытка: задержка ровно baseDelay
	assert.Equal(t, now.Add(2*time.Second), res.NextAvailableAt)

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusPending), saved.Status)
	assert.Equal(t, 1, saved.Attempts)
	assert.Nil(t, saved.LockedBy)
	assert.Contains(t, *saved.LastError, "kafka unavailable")
}

func TestRepository_MarkFailed_ExhaustedAttempts(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))

	// Две неудачи, третья исчерпывает MaxAttempts=3
	for i := 0; i < 2; i++ {
		_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
		require.NoError(t, err)

		res, err := repo.MarkFailed(ctx, id, markFailedOpts("worker-1", true))
		require.NoError(t, err)
		require.Equal(t, OutcomeRetried, res.Outcome)

		// Пропускаем backoff
		*now = res.NextAvailableAt.Add(time.Second)
	}

	_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	res, err := repo.MarkFailed(ctx, id, markFailedOpts("worker-1", true))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusFailed), saved.Status, "FAILED терминален")
	assert.Nil(t, saved.LockedBy)

	// Терминальное событие больше не захватывается
	*now = now.Add(time.Hour)
	events, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, findByID(events, id))
}

func TestRepository_MarkFailed_NonRetryable(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))
	_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	// Постоянная ошибка минует все повторы
	res, err := repo.MarkFailed(ctx, id, markFailedOpts("worker-1", false))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, res.Attempts)

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusFailed), saved.Status)
}

func TestRepository_MarkFailed_LostOwnershipSkipped(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	id := insertPending(t, tenantID, now.Add(-time.Minute))
	_, err := repo.ClaimPending(ctx, 100, "worker-1", 30*time.Second)
	require.NoError(t, err)

	// Аренда истекла, второй воркер перехватил и успешно доставил
	*now = now.Add(time.Minute)
	_, err = repo.ClaimPending(ctx, 100, "worker-2", 30*time.Second)
	require.NoError(t, err)
	ok, err := repo.MarkSent(ctx, id, "worker-2")
	require.NoError(t, err)
	require.True(t, ok)

	// Запоздавший отказ первого воркера не трогает SENT
	res, err := repo.MarkFailed(ctx, id, markFailedOpts("worker-1", true))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, res.Outcome)

	saved := loadEvent(t, id)
	assert.Equal(t, string(StatusSent), saved.Status)
	assert.Equal(t, 0, saved.Attempts, "skipped не инкрементирует попытки")
}

func TestRepository_MarkFailed_NotFound(t *testing.T) {
	repo, _ := newTestRepo()

	_, err := repo.MarkFailed(context.Background(), uuid.New().String(), markFailedOpts("worker-1", true))

	assert.ErrorIs(t, err, ErrEventNotFound)
}

// =============================================================================
// Тесты Stats
// =============================================================================

func TestRepository_Stats(t *testing.T) {
	repo, now := newTestRepo()
	ctx := context.Background()
	tenantID := generateTestID("tenant")

	insertPending(t, tenantID, now.Add(-10*time.Minute))
	insertPending(t, tenantID, now.Add(-time.Minute))
	insertPending(t, tenantID, now.Add(time.Hour)) // не готово

	stats, err := repo.Stats(ctx, *now)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.DuePendingCount, int64(2))
	assert.GreaterOrEqual(t, stats.OldestDuePendingAge, 10*time.Minute)
}

// findByID ищет событие в результате захвата.
func findByID(events []*Event, id string) *Event {
	for _, ev := range events {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}
