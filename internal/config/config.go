package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "IELTS_APP"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Cors    CorsConfig    `mapstructure:"cors"`
	ExamAPI ExamAPIConfig `mapstructure:"exam_api"`
	Storage StorageConfig `mapstructure:"storage"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
}

type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ExamAPIConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=1,lte=300"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=file memory redis"`
	FilePath string `mapstructure:"file_path" validate:"required_if=Driver file"`
	RedisURL string `mapstructure:"redis_url" validate:"required_if=Driver redis"`
}

type SessionConfig struct {
	AnswerDebounceMS         int `mapstructure:"answer_debounce_ms" validate:"gte=0"`
	WritingDebounceMS        int `mapstructure:"writing_debounce_ms" validate:"gte=0"`
	ListeningSaveIntervalMS  int `mapstructure:"listening_save_interval_ms" validate:"gte=0"`
	AutoplayDelayMS          int `mapstructure:"autoplay_delay_ms" validate:"gte=0"`
	SpeakingCountdownSeconds int `mapstructure:"speaking_countdown_seconds" validate:"gte=0,lte=60"`
	SpeakingMaxPromptSeconds int `mapstructure:"speaking_max_prompt_seconds" validate:"gte=0"`
	PoorLatencyMS            int `mapstructure:"poor_latency_ms" validate:"gte=0"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

func (c ExamAPIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c SessionConfig) AnswerDebounce() time.Duration        { return ms(c.AnswerDebounceMS) }
func (c SessionConfig) WritingDebounce() time.Duration       { return ms(c.WritingDebounceMS) }
func (c SessionConfig) ListeningSaveInterval() time.Duration { return ms(c.ListeningSaveIntervalMS) }
func (c SessionConfig) AutoplayDelay() time.Duration         { return ms(c.AutoplayDelayMS) }
func (c SessionConfig) PoorLatency() time.Duration           { return ms(c.PoorLatencyMS) }

func (c SessionConfig) SpeakingMaxPrompt() time.Duration {
	return time.Duration(c.SpeakingMaxPromptSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("exam_api.base_url", "http://localhost:8000/api")
	v.SetDefault("exam_api.timeout_seconds", 30)
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.file_path", "./data/storage.json")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("session.answer_debounce_ms", 800)
	v.SetDefault("session.writing_debounce_ms", 2000)
	v.SetDefault("session.listening_save_interval_ms", 2000)
	v.SetDefault("session.autoplay_delay_ms", 1500)
	v.SetDefault("session.speaking_countdown_seconds", 3)
	v.SetDefault("session.poor_latency_ms", 1500)
	v.SetDefault("session.speaking_max_prompt_seconds", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads .env, then config.yaml from ./config or the working directory,
// then IELTS_APP_* environment variables. A missing file is not an error.
// warnings lists what was skipped so the caller can log it.
func Load(paths ...string) (cfg *Config, warnings []string, err error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config file: %w", err)
		}
		warnings = append(warnings, "config.yaml not found, using defaults and environment variables")
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, warnings, nil
}
