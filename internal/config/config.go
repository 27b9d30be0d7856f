// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server needs, populated from environment
// variables. See Load for the variable names.
type Config struct {
	// HTTP.
	Port            string
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	AllowedOrigins  []string

	// Chat completion backend.
	ChatAPIKey      string
	ChatBaseURL     string
	ChatModel       string
	ChatTemperature float64

	// Baidu speech platform.
	BaiduAppID     string
	BaiduAPIKey    string
	BaiduSecretKey string
	BaiduVoice     int
	BaiduSpeed     int
	BaiduPitch     int

	// Media files.
	MediaDir       string
	MediaRetention time.Duration
	FFmpegBinary   string

	// Sessions.
	MaxSessions    int
	SessionIdleTTL time.Duration
	PendingTimeout time.Duration

	// Optional transcript archive.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Optional extra personas.
	PersonaFile string
}

// Load reads configuration from the environment, applying defaults for
// everything but credentials.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 5),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		ChatAPIKey:      os.Getenv("DEEPSEEK_API_KEY"),
		ChatBaseURL:     getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
		ChatModel:       getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		ChatTemperature: getEnvFloat("DEEPSEEK_TEMPERATURE", 0.7),

		BaiduAppID:     os.Getenv("BAIDU_APP_ID"),
		BaiduAPIKey:    os.Getenv("BAIDU_API_KEY"),
		BaiduSecretKey: os.Getenv("BAIDU_SECRET_KEY"),
		BaiduVoice:     getEnvInt("BAIDU_TTS_VOICE", 0),
		BaiduSpeed:     getEnvInt("BAIDU_TTS_SPEED", 5),
		BaiduPitch:     getEnvInt("BAIDU_TTS_PITCH", 5),

		MediaDir:       getEnv("MEDIA_DIR", "temp_uploads"),
		MediaRetention: getEnvDuration("MEDIA_RETENTION", time.Hour),
		FFmpegBinary:   getEnv("FFMPEG_BINARY", "ffmpeg"),

		MaxSessions:    getEnvInt("MAX_SESSIONS", 1000),
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),
		PendingTimeout: getEnvDuration("SESSION_PENDING_TIMEOUT", 2*time.Minute),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisTTL:      getEnvDuration("REDIS_TRANSCRIPT_TTL", 7*24*time.Hour),

		PersonaFile: os.Getenv("PERSONA_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings a server cannot run without.
func (c *Config) Validate() error {
	if c.ChatAPIKey == "" {
		return errors.New("DEEPSEEK_API_KEY is required")
	}
	if c.BaiduAPIKey == "" || c.BaiduSecretKey == "" {
		return errors.New("BAIDU_API_KEY and BAIDU_SECRET_KEY are required")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("MAX_SESSIONS must not be negative, got %d", c.MaxSessions)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvList reads a comma-separated list, trimming whitespace around each
// entry.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s", "2h"). Bare numbers
// are read as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
