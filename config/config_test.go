package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
	"chain_id": 1,
	"token_in": "0x000000000000000000000000000000000000aaaa",
	"token_out": "0x000000000000000000000000000000000000bbbb",
	"principal": 10000000000000000000,
	"min_profit": 1000000000000000000,
	"premium_bps": 9,
	"channel": "public",
	"scan_interval": 2000000000,
	"venues": [
		{
			"name": "cheap",
			"kind": "constant_product",
			"address": "0x0000000000000000000000000000000000001001",
			"token0": "0x000000000000000000000000000000000000aaaa",
			"token1": "0x000000000000000000000000000000000000bbbb",
			"fee_bps": 30
		},
		{
			"name": "cl",
			"kind": "concentrated",
			"address": "0x0000000000000000000000000000000000001002",
			"token0": "0x000000000000000000000000000000000000aaaa",
			"token1": "0x000000000000000000000000000000000000bbbb",
			"fee_tiers": [5, 30]
		}
	]
}`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigAppliesFileOverDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.ChainID)
	assert.Equal(t, "public", cfg.Channel)
	assert.Equal(t, 2*time.Second, cfg.ScanInterval)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)), cfg.Principal)
	require.Len(t, cfg.Venues, 2)
	assert.Equal(t, []uint32{5, 30}, cfg.Venues[1].FeeTiers)

	// Untouched fields keep their documented defaults.
	assert.Equal(t, 3*time.Second, cfg.MaxOpportunityAge)
	assert.Equal(t, uint32(5000), cfg.MaxFeeRatioBps)
	assert.Equal(t, 5, cfg.CircuitBreaker.MaxFailures)
	assert.NotNil(t, cfg.Logger)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv(EnvRedisAddr, "redis.internal:6379")
	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Venues = cfg.Venues[:1]
	assert.Error(t, cfg.ValidateConfig(), "a single venue cannot form a round trip")

	cfg = base()
	cfg.TokenOut = cfg.TokenIn
	assert.Error(t, cfg.ValidateConfig())

	cfg = base()
	cfg.Principal = big.NewInt(0)
	assert.Error(t, cfg.ValidateConfig())

	cfg = base()
	cfg.Channel = "carrier-pigeon"
	assert.Error(t, cfg.ValidateConfig())

	cfg = base()
	cfg.Venues[1].FeeTiers = nil
	assert.Error(t, cfg.ValidateConfig(), "a concentrated venue needs fee tiers")

	cfg = base()
	cfg.Venues[0].Kind = "orderbook"
	assert.Error(t, cfg.ValidateConfig())

	cfg = base()
	cfg.CircuitBreaker.MaxFailures = 0
	assert.Error(t, cfg.ValidateConfig())
}

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("ARB_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnvWithDefault("ARB_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnvWithDefault("ARB_TEST_KEY_ABSENT", "fallback"))
}

func TestGetRequiredEnv(t *testing.T) {
	t.Setenv("ARB_TEST_REQUIRED", "value")
	v, err := GetRequiredEnv("ARB_TEST_REQUIRED")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = GetRequiredEnv("ARB_TEST_REQUIRED_ABSENT")
	assert.Error(t, err)
}
