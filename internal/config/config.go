package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the bot configuration. Values come from an optional YAML file
// (CONFIG_FILE) and are overridden by environment variables.
type Config struct {
	TelegramToken string `yaml:"telegram_token"`
	BotDebug      bool   `yaml:"bot_debug"`

	StoreDriver string `yaml:"store_driver"`
	DatabaseURL string `yaml:"database_url"`
	Database    struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	AdminIDs []int64 `yaml:"admin_ids"`

	Payment struct {
		ProviderToken string `yaml:"provider_token"`
		Currency      string `yaml:"currency"`
	} `yaml:"payment"`

	WithdrawalMinAmount decimal.Decimal `yaml:"-"`
	WithdrawalMin       string          `yaml:"withdrawal_min_amount"`

	ConversationTTL time.Duration `yaml:"conversation_ttl"`

	Ops struct {
		Addr  string `yaml:"addr"`
		Token string `yaml:"token"`
	} `yaml:"ops"`
}

// PaymentConfigured reports whether invoices can be issued.
func (c Config) PaymentConfigured() bool {
	return c.Payment.ProviderToken != ""
}

// DSN returns DATABASE_URL or a key/value DSN built from the database section.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Load reads .env (if any), CONFIG_FILE (if set) and the environment.
func Load() (Config, error) {
	// A missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	var cfg Config
	cfg.StoreDriver = DriverPostgres
	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Name = "product_bot"
	cfg.Database.SSLMode = "disable"
	cfg.Payment.Currency = "RUB"
	cfg.WithdrawalMin = "100"
	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.StoreDriver, "STORE_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")
	setString(&cfg.Payment.ProviderToken, "PAYMENT_PROVIDER_TOKEN")
	setString(&cfg.Payment.Currency, "PAYMENT_CURRENCY")
	setString(&cfg.WithdrawalMin, "WITHDRAWAL_MIN_AMOUNT")
	setString(&cfg.Ops.Addr, "OPS_ADDR")
	setString(&cfg.Ops.Token, "OPS_TOKEN")

	if v, ok := lookup("BOT_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BOT_DEBUG: %w", err)
		}
		cfg.BotDebug = debug
	}
	if v, ok := lookup("ADMIN_IDS"); ok {
		ids, err := ParseAdminIDs(v)
		if err != nil {
			return err
		}
		cfg.AdminIDs = ids
	}
	if v, ok := lookup("CONVERSATION_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CONVERSATION_TTL: %w", err)
		}
		cfg.ConversationTTL = ttl
	}

	minAmount, err := decimal.NewFromString(strings.ReplaceAll(cfg.WithdrawalMin, ",", "."))
	if err != nil {
		return fmt.Errorf("WITHDRAWAL_MIN_AMOUNT: %w", err)
	}
	cfg.WithdrawalMinAmount = minAmount
	return nil
}

func (c Config) validate() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver)
	}
	if c.WithdrawalMinAmount.IsNegative() {
		return errors.New("WITHDRAWAL_MIN_AMOUNT must not be negative")
	}
	if c.ConversationTTL < 0 {
		return errors.New("CONVERSATION_TTL must not be negative")
	}
	if c.Ops.Addr != "" && c.Ops.Token == "" {
		return errors.New("OPS_TOKEN is required when OPS_ADDR is set")
	}
	return nil
}

// ParseAdminIDs parses a comma separated list of Telegram ids.
func ParseAdminIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_IDS: invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}
