package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	CheckoutModeSession = "session"
	CheckoutModeDirect  = "direct"
)

// Stripe rejects checkout sessions expiring outside this window.
const (
	MinCheckoutSessionTTL = 30 * time.Minute
	MaxCheckoutSessionTTL = 24 * time.Hour
)

type Config struct {
	HTTPPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers  string
	KafkaGroupID  string
	DLQAutoReplay bool

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentMockURL      string
	Currency            string
	CheckoutMode        string
	CheckoutSessionTTL  time.Duration
	PublicBaseURL       string

	AuthJWTSecret string

	PendingOrderTTL time.Duration
	ReapInterval    time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "storefront")
	v.SetDefault("DB_PASSWORD", "storefront")
	v.SetDefault("DB_NAME", "storefront")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_GROUP_ID", "storefront-tracking")
	v.SetDefault("DLQ_AUTO_REPLAY", false)
	v.SetDefault("CURRENCY", "usd")
	v.SetDefault("CHECKOUT_MODE", CheckoutModeSession)
	v.SetDefault("CHECKOUT_SESSION_TTL", "1h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	v.SetDefault("PENDING_ORDER_TTL", "2h")
	v.SetDefault("REAP_INTERVAL", "0s")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads defaults, an optional YAML file named by STOREFRONT_CONFIG and
// finally the environment, which wins over both.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		HTTPPort:            v.GetString("HTTP_PORT"),
		DBHost:              v.GetString("DB_HOST"),
		DBPort:              v.GetString("DB_PORT"),
		DBUser:              v.GetString("DB_USER"),
		DBPassword:          v.GetString("DB_PASSWORD"),
		DBName:              v.GetString("DB_NAME"),
		DBSSLMode:           v.GetString("DB_SSLMODE"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             v.GetInt("REDIS_DB"),
		KafkaBrokers:        v.GetString("KAFKA_BROKERS"),
		KafkaGroupID:        v.GetString("KAFKA_GROUP_ID"),
		DLQAutoReplay:       v.GetBool("DLQ_AUTO_REPLAY"),
		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		PaymentMockURL:      strings.TrimRight(v.GetString("PAYMENT_MOCK_URL"), "/"),
		Currency:            strings.ToLower(v.GetString("CURRENCY")),
		CheckoutMode:        strings.ToLower(v.GetString("CHECKOUT_MODE")),
		CheckoutSessionTTL:  v.GetDuration("CHECKOUT_SESSION_TTL"),
		PublicBaseURL:       strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		AuthJWTSecret:       v.GetString("AUTH_JWT_SECRET"),
		PendingOrderTTL:     v.GetDuration("PENDING_ORDER_TTL"),
		ReapInterval:        v.GetDuration("REAP_INTERVAL"),
		RateLimitRPS:        v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:      v.GetInt("RATE_LIMIT_BURST"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.CheckoutMode {
	case CheckoutModeSession, CheckoutModeDirect:
	default:
		return fmt.Errorf("invalid CHECKOUT_MODE %q", c.CheckoutMode)
	}
	if c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set")
	}
	if c.CheckoutMode == CheckoutModeSession {
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET must be set in %s checkout mode", CheckoutModeSession)
		}
		if c.CheckoutSessionTTL < MinCheckoutSessionTTL || c.CheckoutSessionTTL > MaxCheckoutSessionTTL {
			return fmt.Errorf("CHECKOUT_SESSION_TTL (%s) must be between %s and %s",
				c.CheckoutSessionTTL, MinCheckoutSessionTTL, MaxCheckoutSessionTTL)
		}
	}
	if c.PendingOrderTTL <= c.CheckoutSessionTTL {
		return fmt.Errorf("PENDING_ORDER_TTL (%s) must be longer than CHECKOUT_SESSION_TTL (%s)",
			c.PendingOrderTTL, c.CheckoutSessionTTL)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) KafkaEnabled() bool {
	return c.KafkaBrokers != ""
}

// NewLogger builds the JSON logger every binary uses.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
