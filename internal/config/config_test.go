package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the two mandatory variables so individual tests can
// poke at the rest
func setRequired(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "test-token")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("MONGODB_DBNAME", "")
	t.Setenv("STEAM_STORE_URL", "")
	t.Setenv("STEAM_COMMUNITY_URL", "")
	t.Setenv("SWEEP_HOUR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.DiscordToken)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "steamsale", cfg.MongoDBName)
	assert.Equal(t, "https://store.steampowered.com", cfg.SteamStoreURL)
	assert.Equal(t, "https://steamcommunity.com", cfg.SteamCommunityURL)
	assert.Equal(t, 10, cfg.SweepHour)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MONGODB_DBNAME", "steamsale_dev")
	t.Setenv("STEAM_STORE_URL", "http://localhost:8080")
	t.Setenv("SWEEP_HOUR", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "steamsale_dev", cfg.MongoDBName)
	assert.Equal(t, "http://localhost:8080", cfg.SteamStoreURL)
	assert.Equal(t, 0, cfg.SweepHour)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingDiscordToken(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_BOT_TOKEN")
}

func TestLoadMissingMongoURI(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "test-token")
	t.Setenv("MONGODB_URI", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGODB_URI")
}

func TestLoadInvalidSweepHour(t *testing.T) {
	setRequired(t)

	for _, bad := range []string{"ten", "-1", "24"} {
		t.Setenv("SWEEP_HOUR", bad)

		_, err := Load()
		assert.Error(t, err, "SWEEP_HOUR=%s", bad)
	}
}
