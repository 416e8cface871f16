// Package config loads service settings from defaults, a config file, a .env
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AppName   = "vidqa"
	envPrefix = "VIDQA"
)

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// Enabled reports whether an archive database was configured.
func (p Postgres) Enabled() bool { return p.Host != "" }

type Config struct {
	APIPort int

	RedisURL        string
	CacheMaxEntries int
	CacheL1TTL      time.Duration
	CacheTimeout    time.Duration

	YouTubeAPIKey   string
	YouTubeRPS      float64
	TranscriptLangs []string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float32

	ProviderTimeout time.Duration
	PageTimeout     time.Duration
	// PageAllowPrivate lets the page proxy reach loopback and private
	// networks.
	PageAllowPrivate bool
	StatusTTL        time.Duration
	MetadataTTL      time.Duration
	DegradedTTL      time.Duration
	TranscriptTTL    time.Duration
	SummaryTTL       time.Duration
	LockMode         string
	QAFallback       bool
	QAHistoryWindow  int
	MaxTranscript    int

	Postgres Postgres

	WeaviateScheme string
	WeaviateHost   string
	WeaviateAPIKey string

	LogLevel  string
	LogFormat string

	// ConfigFile is the file that was read, empty when none was found.
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", 8080)

	v.SetDefault("redis_url", "")
	v.SetDefault("cache_max_entries", 10000)
	v.SetDefault("cache_l1_ttl", 5*time.Minute)
	v.SetDefault("cache_timeout", 2*time.Second)

	v.SetDefault("youtube_api_key", "")
	v.SetDefault("youtube_rps", 5.0)
	v.SetDefault("transcript_langs", []string{"en"})

	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("openai_model", "gpt-3.5-turbo")
	v.SetDefault("openai_max_tokens", 1024)
	v.SetDefault("openai_temperature", 0.3)

	v.SetDefault("provider_timeout", 15*time.Second)
	v.SetDefault("page_timeout", 10*time.Second)
	v.SetDefault("page_allow_private", false)
	v.SetDefault("status_ttl", 300*time.Second)
	v.SetDefault("metadata_ttl", 3600*time.Second)
	v.SetDefault("degraded_ttl", 300*time.Second)
	v.SetDefault("transcript_ttl", 7200*time.Second)
	v.SetDefault("summary_ttl", 7200*time.Second)
	v.SetDefault("lock_mode", "advisory")
	v.SetDefault("qa_fallback", true)
	v.SetDefault("qa_history_window", 6)
	v.SetDefault("max_transcript_chars", 24000)

	v.SetDefault("postgres_host", "")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", AppName)
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db", AppName)
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("weaviate_scheme", "http")
	v.SetDefault("weaviate_host", "")
	v.SetDefault("weaviate_api_key", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads the configuration. When file is empty, config.toml is looked up
// in the XDG config directory and the working directory. A missing file is
// not an error.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for key, bare := range map[string]string{
		"redis_url":       "REDIS_URL",
		"openai_api_key":  "OPENAI_API_KEY",
		"youtube_api_key": "YOUTUBE_API_KEY",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), bare); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		APIPort:         v.GetInt("api_port"),
		RedisURL:        v.GetString("redis_url"),
		CacheMaxEntries: v.GetInt("cache_max_entries"),
		CacheL1TTL:      v.GetDuration("cache_l1_ttl"),
		CacheTimeout:    v.GetDuration("cache_timeout"),

		YouTubeAPIKey:   v.GetString("youtube_api_key"),
		YouTubeRPS:      v.GetFloat64("youtube_rps"),
		TranscriptLangs: splitList(v.GetStringSlice("transcript_langs")),

		OpenAIAPIKey:      v.GetString("openai_api_key"),
		OpenAIBaseURL:     v.GetString("openai_base_url"),
		OpenAIModel:       v.GetString("openai_model"),
		OpenAIMaxTokens:   v.GetInt("openai_max_tokens"),
		OpenAITemperature: float32(v.GetFloat64("openai_temperature")),

		ProviderTimeout:  v.GetDuration("provider_timeout"),
		PageTimeout:      v.GetDuration("page_timeout"),
		PageAllowPrivate: v.GetBool("page_allow_private"),
		StatusTTL:        v.GetDuration("status_ttl"),
		MetadataTTL:      v.GetDuration("metadata_ttl"),
		DegradedTTL:      v.GetDuration("degraded_ttl"),
		TranscriptTTL:    v.GetDuration("transcript_ttl"),
		SummaryTTL:       v.GetDuration("summary_ttl"),
		LockMode:         strings.ToLower(v.GetString("lock_mode")),
		QAFallback:       v.GetBool("qa_fallback"),
		QAHistoryWindow:  v.GetInt("qa_history_window"),
		MaxTranscript:    v.GetInt("max_transcript_chars"),

		Postgres: Postgres{
			Host:     v.GetString("postgres_host"),
			Port:     v.GetString("postgres_port"),
			User:     v.GetString("postgres_user"),
			Password: v.GetString("postgres_password"),
			Database: v.GetString("postgres_db"),
			SSLMode:  v.GetString("postgres_sslmode"),
		},

		WeaviateScheme: v.GetString("weaviate_scheme"),
		WeaviateHost:   v.GetString("weaviate_host"),
		WeaviateAPIKey: v.GetString("weaviate_api_key"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: strings.ToLower(v.GetString("log_format")),

		ConfigFile: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("api_port %d out of range", c.APIPort))
	}
	if c.LockMode != "advisory" && c.LockMode != "exclusive" {
		errs = append(errs, fmt.Errorf("lock_mode must be advisory or exclusive, got %q", c.LockMode))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	if c.CacheMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("cache_max_entries must be positive"))
	}
	if c.YouTubeRPS <= 0 {
		errs = append(errs, fmt.Errorf("youtube_rps must be positive"))
	}
	if c.QAHistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("qa_history_window must not be negative"))
	}

	return errors.Join(errs...)
}

// NewLogger builds the structured logger every component receives.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// splitList accepts both TOML arrays and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
