package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Booking      BookingConfig
	CheckIn      CheckInConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRIMLY_APP_ENV" required:"true"`
	Port         string `envconfig:"TRIMLY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TRIMLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRIMLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"TRIMLY_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"TRIMLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRIMLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRIMLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRIMLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRIMLY_REDIS_URL"`
	Address      string        `envconfig:"TRIMLY_REDIS_ADDR"`
	Password     string        `envconfig:"TRIMLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRIMLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRIMLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRIMLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRIMLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRIMLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRIMLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRIMLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRIMLY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRIMLY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PasswordConfig holds the Argon2id hashing parameters.
type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TRIMLY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TRIMLY_ARGON_TIME" default:"1"`
	ArgonParallelism int `envconfig:"TRIMLY_ARGON_PARALLELISM" default:"4"`
	ArgonSaltLen     int `envconfig:"TRIMLY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TRIMLY_ARGON_KEY_LEN" default:"32"`
}

// BookingConfig tunes the availability engine and booking policies.
type BookingConfig struct {
	SlotGranularityMinutes int `envconfig:"TRIMLY_BOOKING_SLOT_GRANULARITY_MINUTES" default:"15"`

	// CancellationGrace is the cutoff before scheduled_at after which a
	// cancelled subscription booking forfeits its reserved usage unit.
	CancellationGrace time.Duration `envconfig:"TRIMLY_BOOKING_CANCELLATION_GRACE" default:"30m"`

	// ConfirmSubscriptionBookings confirms subscription-paid appointments
	// immediately instead of leaving them pending.
	ConfirmSubscriptionBookings bool `envconfig:"TRIMLY_BOOKING_CONFIRM_SUBSCRIPTION" default:"true"`

	AvailabilityCacheTTL time.Duration `envconfig:"TRIMLY_BOOKING_AVAILABILITY_CACHE_TTL" default:"30s"`
}

func (b BookingConfig) SlotGranularity() time.Duration {
	return time.Duration(b.SlotGranularityMinutes) * time.Minute
}

func (b BookingConfig) validate() error {
	if b.SlotGranularityMinutes <= 0 {
		return fmt.Errorf("slot granularity must be positive, got %d", b.SlotGranularityMinutes)
	}
	if b.CancellationGrace < 0 {
		return fmt.Errorf("cancellation grace must not be negative")
	}
	return nil
}

// CheckInConfig tunes check-in token issuance and usage settlement.
type CheckInConfig struct {
	TokenTTLMinutes int `envconfig:"TRIMLY_CHECKIN_TOKEN_TTL_MINUTES" default:"15"`

	// ReserveOnCheckIn flips the default settlement policy from
	// reserve-at-booking to reserve-at-check-in. Establishments can override
	// this per row.
	ReserveOnCheckIn bool `envconfig:"TRIMLY_CHECKIN_RESERVE_ON_CHECKIN" default:"false"`
}

func (c CheckInConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TRIMLY_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"TRIMLY_OUTBOX_POLL_INTERVAL" default:"2s"`
	BatchSize    int           `envconfig:"TRIMLY_OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts  int           `envconfig:"TRIMLY_OUTBOX_MAX_ATTEMPTS" default:"10"`

	// Channel names for the Redis pub/sub fan-out of published events.
	BookingChannel      string `envconfig:"TRIMLY_OUTBOX_BOOKING_CHANNEL" default:"events.bookings"`
	QueueChannel        string `envconfig:"TRIMLY_OUTBOX_QUEUE_CHANNEL" default:"events.queue"`
	NotificationChannel string `envconfig:"TRIMLY_OUTBOX_NOTIFICATION_CHANNEL" default:"events.notifications"`
}
