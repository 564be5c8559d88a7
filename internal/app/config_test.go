package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 3, cfg.SaleMaxAttempts)
	assert.True(t, cfg.InventoryMigrateLegacy)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, 90, cfg.NearExpiryDays)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SALE_MAX_ATTEMPTS", "5")
	t.Setenv("INVENTORY_MIGRATE_LEGACY", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.SaleMaxAttempts)
	assert.False(t, cfg.InventoryMigrateLegacy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
}

func TestConfigValidate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	base := Config{PGDSN: "postgres://x", SaleMaxAttempts: 1, NearExpiryDays: 30}
	require.NoError(t, base.Validate())

	bad := base
	bad.SaleMaxAttempts = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.APIKeyHash = "plain-text"
	require.Error(t, bad.Validate())

	prod := base
	prod.AppEnv = "production"
	require.Error(t, prod.Validate())
	prod.APIKeyHash = string(hash)
	require.NoError(t, prod.Validate())
}
