package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Port           string
	DBPath         string
	JWTKey         string
	BotToken       string
	AdminChatID    int64
	RepairSchedule string
	APIBaseURL     string
	APIToken       string
	APITimeout     time.Duration
	LogLevel       string
}

const defaultJWTKey = "defaultSecret"

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; variables already set win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		DBPath:         getEnv("DB_PATH", "progress.db"),
		JWTKey:         getEnv("JWT_SECRET_KEY", defaultJWTKey),
		BotToken:       os.Getenv("BOT_TOKEN"),
		RepairSchedule: getEnv("REPAIR_SCHEDULE", "@daily"),
		APIBaseURL:     strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3000"), "/"),
		APIToken:       os.Getenv("API_TOKEN"),
		APITimeout:     getEnvDuration("API_TIMEOUT", 15*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("ADMIN_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("invalid ADMIN_CHAT_ID: " + raw)
		}
		cfg.AdminChatID = id
	}

	return cfg, nil
}

func (c *Config) UsesDefaultJWTKey() bool {
	return c.JWTKey == defaultJWTKey
}

// AdminNotificationsEnabled reports whether panics can be forwarded to Telegram.
func (c *Config) AdminNotificationsEnabled() bool {
	return c.BotToken != "" && c.AdminChatID != 0
}

func (c *Config) NewLogger() (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
