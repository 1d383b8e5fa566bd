package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TELEGRAM_TOKEN", "BOT_DEBUG", "CONFIG_FILE", "STORE_DRIVER", "DATABASE_URL",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"ADMIN_IDS", "PAYMENT_PROVIDER_TOKEN", "PAYMENT_CURRENCY", "WITHDRAWAL_MIN_AMOUNT",
		"CONVERSATION_TTL", "OPS_ADDR", "OPS_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "RUB", cfg.Payment.Currency)
	assert.True(t, cfg.WithdrawalMinAmount.Equal(decimal.NewFromInt(100)))
	assert.False(t, cfg.PaymentConfigured())
	assert.Zero(t, cfg.ConversationTTL)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=product_bot sslmode=disable", cfg.DSN())
}

func TestLoadRequiresToken(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN")
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "10, 20,,30")
	t.Setenv("WITHDRAWAL_MIN_AMOUNT", "50,5")
	t.Setenv("PAYMENT_PROVIDER_TOKEN", "provider")
	t.Setenv("CONVERSATION_TTL", "30m")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/market")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 20, 30}, cfg.AdminIDs)
	assert.True(t, cfg.WithdrawalMinAmount.Equal(decimal.RequireFromString("50.5")))
	assert.True(t, cfg.PaymentConfigured())
	assert.Equal(t, 30*time.Minute, cfg.ConversationTTL)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "postgres://u:p@db/market", cfg.DSN())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
telegram_token: "from-file"
admin_ids: [1, 2]
payment:
  provider_token: "file-provider"
  currency: "USD"
withdrawal_min_amount: "250"
conversation_ttl: 1h
database:
  host: db.internal
  port: "6432"
  user: bot
  password: secret
  dbname: market
  sslmode: require
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	clearEnv(t)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PAYMENT_CURRENCY", "EUR")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.TelegramToken)
	assert.Equal(t, []int64{1, 2}, cfg.AdminIDs)
	assert.Equal(t, "file-provider", cfg.Payment.ProviderToken)
	assert.Equal(t, "EUR", cfg.Payment.Currency)
	assert.True(t, cfg.WithdrawalMinAmount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, time.Hour, cfg.ConversationTTL)
	assert.Equal(t, "host=db.internal port=6432 user=bot password=secret dbname=market sslmode=require", cfg.DSN())
}

func TestLoadRejectsOpsWithoutToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("OPS_ADDR", ":9090")

	_, err := Load()
	require.Error(t, err)
}

func TestParseAdminIDs(t *testing.T) {
	ids, err := ParseAdminIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseAdminIDs("1,abc")
	assert.Error(t, err)
}
