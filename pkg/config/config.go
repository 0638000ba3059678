// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию приложения.
type Config struct {
	App         AppConfig
	MySQL       MySQLConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	Idempotency IdempotencyConfig
	HTTP        HTTPConfig
	Metrics     MetricsConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"business-suite"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"business_suite"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Topic — топик для интеграционных событий outbox.
	Topic string `env:"KAFKA_OUTBOX_TOPIC" envDefault:"suite.events"`
}

// OutboxConfig содержит настройки Outbox Dispatcher.
// Значения по умолчанию подобраны для backlog до нескольких тысяч событий.
type OutboxConfig struct {
	// PollInterval — интервал между опросами таблицы outbox.
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`

	// BatchSize — максимум событий, захватываемых за один ClaimPending.
	BatchSize int `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// LeaseDuration — срок аренды захваченного события.
	// По истечении незавершённое событие снова доступно для захвата.
	LeaseDuration time.Duration `env:"OUTBOX_LEASE_DURATION" envDefault:"30s"`

	// MaxAttempts — максимум попыток доставки до перевода в FAILED.
	MaxAttempts int `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"8"`

	// RetryBaseDelay — базовая задержка экспоненциального backoff.
	RetryBaseDelay time.Duration `env:"OUTBOX_RETRY_BASE_DELAY" envDefault:"2s"`

	// RetryMaxDelay — верхняя граница задержки backoff.
	RetryMaxDelay time.Duration `env:"OUTBOX_RETRY_MAX_DELAY" envDefault:"5m"`

	// RetryJitter — максимум равномерного случайного джиттера,
	// добавляемого к задержке backoff.
	RetryJitter time.Duration `env:"OUTBOX_RETRY_JITTER" envDefault:"1s"`

	// WorkerCount — количество конкурентных dispatcher-горутин в процессе.
	WorkerCount int `env:"OUTBOX_WORKER_COUNT" envDefault:"2"`

	// StatsInterval — интервал публикации метрик очереди.
	StatsInterval time.Duration `env:"OUTBOX_STATS_INTERVAL" envDefault:"15s"`
}

// IdempotencyConfig содержит настройки хранилища идемпотентности.
type IdempotencyConfig struct {
	// CacheTTL — время жизни результата в Redis-кэше.
	// Авторитетное хранилище — MySQL, кэш лишь ускоряет повторные чтения.
	CacheTTL time.Duration `env:"IDEMPOTENCY_CACHE_TTL" envDefault:"24h"`
}

// HTTPConfig содержит настройки HTTP API.
type HTTPConfig struct {
	Port            int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr возвращает адрес для HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// MetricsConfig содержит настройки Prometheus метрик.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"` // Включить metrics endpoint
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`    // Порт для /metrics
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	// Игнорируем ошибку: отсутствие .env — нормальная ситуация в production
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
