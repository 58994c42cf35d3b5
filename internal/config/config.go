package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string

	// MongoDB
	MongoURI    string
	MongoDBName string

	// Steam API
	SteamStoreURL     string
	SteamCommunityURL string

	// Sweep
	SweepHour int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:      os.Getenv("DISCORD_BOT_TOKEN"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDBName:       getEnvOrDefault("MONGODB_DBNAME", "steamsale"),
		SteamStoreURL:     getEnvOrDefault("STEAM_STORE_URL", "https://store.steampowered.com"),
		SteamCommunityURL: getEnvOrDefault("STEAM_COMMUNITY_URL", "https://steamcommunity.com"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Parse sweep hour
	hourStr := getEnvOrDefault("SWEEP_HOUR", "10")
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_HOUR: %w", err)
	}
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("SWEEP_HOUR must be between 0 and 23, got %d", hour)
	}
	cfg.SweepHour = hour

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
