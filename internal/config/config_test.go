package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func masterEnv() map[string]string {
	return map[string]string{
		"MASTER_API_KEY":     "key",
		"MASTER_CLIENT_ID":   "C001",
		"MASTER_PASSWORD":    "0000",
		"MASTER_TOTP_SECRET": "JBSWY3DPEHPK3PXP",
		"MASTER_SECRET_KEY":  "secret",
	}
}

func followerEnv(n int) map[string]string {
	prefix := "FOLLOWER_" + string(rune('0'+n))
	return map[string]string{
		prefix + "_API_KEY":     "key",
		prefix + "_CLIENT_ID":   "C00" + string(rune('0'+n)),
		prefix + "_PASSWORD":    "0000",
		prefix + "_TOTP_SECRET": "JBSWY3DPEHPK3PXP",
		prefix + "_SECRET_KEY":  "secret",
	}
}

func merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFromEnv(envMap(masterEnv()))
	require.NoError(t, err)

	assert.Equal(t, "master", cfg.Master.Name)
	assert.Empty(t, cfg.Followers)

	assert.True(t, cfg.Policy.DryRun, "dry run defaults to on")
	assert.True(t, cfg.Policy.CopyAllOrders)
	assert.Equal(t, 1.0, cfg.Policy.QuantityMultiplier)

	assert.Equal(t, 6*time.Second, cfg.MarketHoursInterval)
	assert.Equal(t, time.Minute, cfg.OffHoursInterval)
	assert.Equal(t, 10, cfg.MaxCallsPerMinute)
	assert.Equal(t, 5*time.Second, cfg.InitDelay)
	assert.Equal(t, 15*time.Second, cfg.GracePeriod)
	assert.Equal(t, "./copy_trader.db", cfg.DBPath)
	assert.Equal(t, "logs", cfg.LogDir)
}

func TestLoadMissingMasterCredentials(t *testing.T) {
	env := masterEnv()
	delete(env, "MASTER_PASSWORD")
	delete(env, "MASTER_TOTP_SECRET")

	_, err := loadFromEnv(envMap(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master account")
}

func TestLoadFollowerScan(t *testing.T) {
	env := merge(masterEnv(), followerEnv(1), followerEnv(2))

	cfg, err := loadFromEnv(envMap(env))
	require.NoError(t, err)

	require.Len(t, cfg.Followers, 2)
	assert.Equal(t, "follower_1", cfg.Followers[0].Name)
	assert.Equal(t, "follower_2", cfg.Followers[1].Name)
}

func TestLoadFollowerScanStopsAtGap(t *testing.T) {
	// FOLLOWER_2 отсутствует: скан останавливается, FOLLOWER_3 игнорируется
	env := merge(masterEnv(), followerEnv(1), followerEnv(3))

	cfg, err := loadFromEnv(envMap(env))
	require.NoError(t, err)

	require.Len(t, cfg.Followers, 1)
	assert.Equal(t, "follower_1", cfg.Followers[0].Name)
}

func TestLoadIncompleteFollowerFails(t *testing.T) {
	env := merge(masterEnv(), followerEnv(1))
	delete(env, "FOLLOWER_1_PASSWORD")

	_, err := loadFromEnv(envMap(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "follower 1")
}

func TestLoadPolicyOverrides(t *testing.T) {
	env := merge(masterEnv(), map[string]string{
		"DRY_RUN":             "false",
		"COPY_ALL_ORDERS":     "false",
		"ALLOWED_SYMBOLS":     "sbin-eq, infy-eq",
		"BLOCKED_SYMBOLS":     "YESBANK-EQ",
		"USE_FIXED_QUANTITY":  "true",
		"FIXED_QUANTITY":      "25",
		"QUANTITY_MULTIPLIER": "0.5",
		"MAX_ORDER_VALUE":     "50000",
		"COPY_MARKET_ORDERS":  "false",
	})

	cfg, err := loadFromEnv(envMap(env))
	require.NoError(t, err)

	p := cfg.Policy
	assert.False(t, p.DryRun)
	assert.False(t, p.CopyAllOrders)
	assert.Equal(t, []string{"SBIN-EQ", "INFY-EQ"}, p.AllowedSymbols, "symbols are normalized to upper case")
	assert.Equal(t, []string{"YESBANK-EQ"}, p.BlockedSymbols)
	assert.True(t, p.UseFixedQuantity)
	assert.Equal(t, 25, p.FixedQuantity)
	assert.Equal(t, 0.5, p.QuantityMultiplier)
	assert.Equal(t, 50000.0, p.MaxOrderValue)
	assert.False(t, p.CopyMarketOrders)
	assert.True(t, p.CopyLimitOrders)
}

func TestLoadIntervalOverrides(t *testing.T) {
	env := merge(masterEnv(), map[string]string{
		"MARKET_HOURS_INTERVAL": "3s",
		"OFF_HOURS_INTERVAL":    "2m",
		"MAX_CALLS_PER_MINUTE":  "5",
		"GRACE_PERIOD":          "0s",
	})

	cfg, err := loadFromEnv(envMap(env))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.MarketHoursInterval)
	assert.Equal(t, 2*time.Minute, cfg.OffHoursInterval)
	assert.Equal(t, 5, cfg.MaxCallsPerMinute)

	// Нулевая длительность невалидна, остается дефолт
	assert.Equal(t, 15*time.Second, cfg.GracePeriod)
}

func TestLoadInvalidChatID(t *testing.T) {
	env := merge(masterEnv(), map[string]string{
		"TELEGRAM_BOT_TOKEN": "token",
		"TELEGRAM_CHAT_ID":   "not-a-number",
	})

	_, err := loadFromEnv(envMap(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
}
