package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	DatabaseURL       string
	SQLitePath        string
	RedisURL          string
	CacheTTL          time.Duration
	NATSURL           string
	NATSSubject       string
	JWTSecret         string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	OpenAIMaxTokens   int
	OpenAITemperature float32
	CallTimeout       time.Duration
	Concurrent        bool
	OutOfRangePolicy  string
	RateLimit         int
	RateWindow        time.Duration
	EssayMaxLength    int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ESSAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Essay Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("sqlite.path", "essay_grading.db")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("nats.subject", "essays.graded")
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 16)
	v.SetDefault("openai.temperature", 0)
	v.SetDefault("grading.call_timeout", "30s")
	v.SetDefault("grading.concurrent", true)
	v.SetDefault("grading.out_of_range", "reject")
	v.SetDefault("grading.rate_limit", 30)
	v.SetDefault("grading.rate_window", "1m")
	v.SetDefault("essay.max_length", 20000)

	cacheTTL, err := parseDuration(v, "cache.ttl")
	if err != nil {
		return Config{}, err
	}
	callTimeout, err := parseDuration(v, "grading.call_timeout")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "grading.rate_window")
	if err != nil {
		return Config{}, err
	}

	// Plain OPENAI_API_KEY is honoured so existing .env files keep working.
	_ = v.BindEnv("openai_api_key", "ESSAY_OPENAI_API_KEY", "OPENAI_API_KEY")

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		SQLitePath:        v.GetString("sqlite.path"),
		RedisURL:          v.GetString("redis.url"),
		CacheTTL:          cacheTTL,
		NATSURL:           v.GetString("nats.url"),
		NATSSubject:       v.GetString("nats.subject"),
		JWTSecret:         v.GetString("jwt.secret"),
		OpenAIAPIKey:      strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIModel:       v.GetString("openai.model"),
		OpenAIBaseURL:     v.GetString("openai.base_url"),
		OpenAIMaxTokens:   v.GetInt("openai.max_tokens"),
		OpenAITemperature: float32(v.GetFloat64("openai.temperature")),
		CallTimeout:       callTimeout,
		Concurrent:        v.GetBool("grading.concurrent"),
		OutOfRangePolicy:  strings.ToLower(strings.TrimSpace(v.GetString("grading.out_of_range"))),
		RateLimit:         v.GetInt("grading.rate_limit"),
		RateWindow:        rateWindow,
		EssayMaxLength:    v.GetInt("essay.max_length"),
	}

	if cfg.OutOfRangePolicy != "reject" && cfg.OutOfRangePolicy != "clamp" {
		return Config{}, fmt.Errorf("invalid grading out of range policy %q", cfg.OutOfRangePolicy)
	}

	if cfg.EssayMaxLength <= 0 {
		cfg.EssayMaxLength = 20000
	}

	if cfg.OpenAIMaxTokens <= 0 {
		cfg.OpenAIMaxTokens = 16
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return duration, nil
}
