package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int `mapstructure:"PORT"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `mapstructure:"DATABASE_PATH"`

	// PhotosDir is where ingested photos are stored and served from.
	PhotosDir string `mapstructure:"PHOTOS_DIR"`

	// AllowedOrigin is the front-end origin allowed by CORS and the stream endpoint.
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	// TelegramAPIURL is the Bot API root; photos are downloaded from its file host.
	TelegramAPIURL string `mapstructure:"TELEGRAM_API_URL"`

	// TelegramBotToken authenticates the bot.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	// TelegramChatID receives appointment notifications.
	TelegramChatID string `mapstructure:"TELEGRAM_CHAT_ID"`

	// GoogleFontsAPIKey and GoogleFontsURL configure the font list proxy.
	GoogleFontsAPIKey string `mapstructure:"GOOGLE_FONTS_API_KEY"`
	GoogleFontsURL    string `mapstructure:"GOOGLE_FONTS_URL"`

	// MediaGroupWindow is how long a media group collects photos.
	MediaGroupWindow time.Duration `mapstructure:"MEDIA_GROUP_WINDOW"`

	// PollTimeout is the long-poll timeout for getUpdates.
	PollTimeout time.Duration `mapstructure:"POLL_TIMEOUT"`

	// HTTPTimeout bounds outbound downloads and API calls.
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads configuration from an optional env file (ENV_FILE, default
// ".env") and environment variables, with sensible defaults. Environment
// variables take precedence over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 3001)
	v.SetDefault("DATABASE_PATH", "posts.db")
	v.SetDefault("PHOTOS_DIR", "photos")
	v.SetDefault("ALLOWED_ORIGIN", "http://localhost:3000")
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
	v.SetDefault("GOOGLE_FONTS_API_KEY", "")
	v.SetDefault("GOOGLE_FONTS_URL", "https://www.googleapis.com/webfonts/v1/webfonts")
	v.SetDefault("MEDIA_GROUP_WINDOW", 2*time.Second)
	v.SetDefault("POLL_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, cfg.Validate()
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.MediaGroupWindow <= 0 {
		return fmt.Errorf("MEDIA_GROUP_WINDOW must be positive")
	}
	return nil
}
