package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Booking  BookingConfig  `yaml:"booking"`
	OTP      OTPConfig      `yaml:"otp"`
	Tickets  TicketsConfig  `yaml:"tickets"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address         string  `yaml:"address"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	OTPVerifyPerMin int     `yaml:"otp_verify_per_minute"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type BookingConfig struct {
	PendingTTLMinutes     int `yaml:"pending_ttl_minutes"`
	EventsCacheTTLSeconds int `yaml:"events_cache_ttl_seconds"`
}

type OTPConfig struct {
	TTLMinutes        int `yaml:"ttl_minutes"`
	MaxAttempts       int `yaml:"max_attempts"`
	PurgeGraceMinutes int `yaml:"purge_grace_minutes"`
}

type TicketsConfig struct {
	Secret   string `yaml:"secret"`
	QRSizePx int    `yaml:"qr_size_px"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Booking.PendingTTLMinutes) * time.Minute
}

func (c *Config) EventsCacheTTL() time.Duration {
	return time.Duration(c.Booking.EventsCacheTTLSeconds) * time.Second
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTP.TTLMinutes) * time.Minute
}

func (c *Config) OTPPurgeGrace() time.Duration {
	return time.Duration(c.OTP.PurgeGraceMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Worker.ExpirationSweepMinutes) * time.Minute
}

// LoadConfig reads .env (if present), the yaml file at path and the
// environment overrides, then fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := getenv("TICKETS_SECRET"); v != "" {
		c.Tickets.Secret = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RateLimitRPS == 0 {
		c.HTTP.RateLimitRPS = 100
	}
	if c.HTTP.RateLimitBurst == 0 {
		c.HTTP.RateLimitBurst = 200
	}
	if c.HTTP.OTPVerifyPerMin == 0 {
		c.HTTP.OTPVerifyPerMin = 10
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StoragePostgres
	}
	if c.Booking.PendingTTLMinutes == 0 {
		c.Booking.PendingTTLMinutes = 30
	}
	if c.Booking.EventsCacheTTLSeconds == 0 {
		c.Booking.EventsCacheTTLSeconds = 60
	}
	if c.OTP.TTLMinutes == 0 {
		c.OTP.TTLMinutes = 10
	}
	if c.OTP.MaxAttempts == 0 {
		c.OTP.MaxAttempts = 3
	}
	if c.OTP.PurgeGraceMinutes == 0 {
		c.OTP.PurgeGraceMinutes = 60
	}
	if c.Tickets.QRSizePx == 0 {
		c.Tickets.QRSizePx = 256
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.OTP.TTLMinutes < 0 || c.OTP.MaxAttempts < 0 || c.OTP.PurgeGraceMinutes < 0 {
		return errors.New("otp settings must be positive")
	}
	if c.Booking.PendingTTLMinutes < 0 {
		return errors.New("booking.pending_ttl_minutes must be positive")
	}
	if c.OTP.TTLMinutes > c.Booking.PendingTTLMinutes && c.Booking.PendingTTLMinutes > 0 {
		return errors.New("otp.ttl_minutes cannot exceed booking.pending_ttl_minutes")
	}
	if c.Worker.ExpirationSweepMinutes < 0 {
		return errors.New("worker.expiration_sweep_minutes must be positive")
	}
	if c.Tickets.Secret == "" {
		return errors.New("tickets.secret is required (or TICKETS_SECRET)")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	return nil
}
