package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultLiveWSURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Config contains all runtime settings for the phone backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	AllowAnyOrigin bool

	// APIKey authenticates against the hosted generative endpoints. An empty key is
	// allowed: calls and replies then fail individually instead of blocking startup.
	APIKey string

	LiveProvider string
	LiveModel    string
	LiveVoice    string
	LiveWSURL    string

	ReplyProvider string
	ReplyModel    string
	ReplyHTTPURL  string
	ReplyTimeout  time.Duration

	// ReplyHTTPAttempts is 1 (one-shot) unless retries are opted into.
	ReplyHTTPAttempts int

	InputSampleRate  int
	OutputSampleRate int
	CaptureWindow    int
	MicTimeout       time.Duration
	AudioDumpDir     string

	CallIdleTimeout time.Duration
	CallRetention   time.Duration
}

// Load reads environment variables (and an optional .env file) and applies safe defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	apiKey := stringsTrimSpace("API_KEY")
	if apiKey == "" {
		apiKey = stringsTrimSpace("GEMINI_API_KEY")
	}

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicelink"),
		LogLevel:         strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("APP_LOG_FORMAT", "console")),
		AllowAnyOrigin:   false,
		APIKey:           apiKey,
		LiveProvider:     strings.ToLower(envOrDefault("LIVE_PROVIDER", "auto")),
		LiveModel:        envOrDefault("LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		LiveVoice:        envOrDefault("LIVE_VOICE", "Kore"),
		LiveWSURL:        envOrDefault("LIVE_WS_URL", defaultLiveWSURL),
		ReplyProvider:    strings.ToLower(envOrDefault("REPLY_PROVIDER", "auto")),
		ReplyModel:       envOrDefault("REPLY_MODEL", "gemini-3-flash-preview"),
		ReplyHTTPURL:     stringsTrimSpace("REPLY_HTTP_URL"),
		AudioDumpDir:     stringsTrimSpace("CALL_AUDIO_DUMP_DIR"),
		ShutdownTimeout:  15 * time.Second,
		ReplyTimeout:     60 * time.Second,
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		CaptureWindow:    4096,
		MicTimeout:       30 * time.Second,
		CallIdleTimeout:  2 * time.Minute,
		CallRetention:    30 * time.Minute,

		ReplyHTTPAttempts: 1,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyTimeout, err = durationFromEnv("REPLY_TIMEOUT", cfg.ReplyTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MicTimeout, err = durationFromEnv("CALL_MIC_TIMEOUT", cfg.MicTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallIdleTimeout, err = durationFromEnv("CALL_IDLE_TIMEOUT", cfg.CallIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallRetention, err = durationFromEnv("CALL_RETENTION", cfg.CallRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.InputSampleRate, err = intFromEnv("CALL_INPUT_SAMPLE_RATE", cfg.InputSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.OutputSampleRate, err = intFromEnv("CALL_OUTPUT_SAMPLE_RATE", cfg.OutputSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureWindow, err = intFromEnv("CALL_CAPTURE_WINDOW", cfg.CaptureWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyHTTPAttempts, err = intFromEnv("REPLY_HTTP_ATTEMPTS", cfg.ReplyHTTPAttempts)
	if err != nil {
		return Config{}, err
	}

	if cfg.InputSampleRate <= 0 || cfg.OutputSampleRate <= 0 {
		return Config{}, fmt.Errorf("CALL_INPUT_SAMPLE_RATE and CALL_OUTPUT_SAMPLE_RATE must be positive")
	}
	if cfg.CaptureWindow < 256 || cfg.CaptureWindow > 16384 {
		return Config{}, fmt.Errorf("CALL_CAPTURE_WINDOW must be in [256,16384]")
	}
	if cfg.MicTimeout < time.Second {
		return Config{}, fmt.Errorf("CALL_MIC_TIMEOUT must be at least 1s")
	}
	if cfg.ReplyHTTPAttempts < 1 || cfg.ReplyHTTPAttempts > 5 {
		return Config{}, fmt.Errorf("REPLY_HTTP_ATTEMPTS must be in [1,5]")
	}
	if cfg.ReplyTimeout <= 0 {
		return Config{}, fmt.Errorf("REPLY_TIMEOUT must be positive")
	}
	switch cfg.LiveProvider {
	case "auto", "gemini", "ws", "mock":
	default:
		return Config{}, fmt.Errorf("invalid LIVE_PROVIDER: %q (expected auto|gemini|ws|mock)", cfg.LiveProvider)
	}
	switch cfg.ReplyProvider {
	case "auto", "gemini", "http", "mock":
	default:
		return Config{}, fmt.Errorf("invalid REPLY_PROVIDER: %q (expected auto|gemini|http|mock)", cfg.ReplyProvider)
	}
	if cfg.ReplyProvider == "http" && cfg.ReplyHTTPURL == "" {
		return Config{}, fmt.Errorf("REPLY_PROVIDER=http requires REPLY_HTTP_URL")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
