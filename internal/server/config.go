package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// TurnTimeLimit bounds how long a player may hold the turn before the
	// skip fires.
	TurnTimeLimit time.Duration `env:"TURN_TIME_LIMIT" envDefault:"60s"`

	// TimerRetention bounds how long a session with no attached event stream
	// and no API activity keeps its countdown goroutine.
	TimerRetention time.Duration `env:"TIMER_RETENTION" envDefault:"30m"`

	// StoreBackend selects the session document store: memory, sqlite or
	// supabase.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	DBPath       string `env:"DB_PATH" envDefault:"data/fableroom.db"`

	SupabaseURL   string        `env:"SUPABASE_URL"`
	SupabaseKey   string        `env:"SUPABASE_KEY"`
	SupabaseTable string        `env:"SUPABASE_TABLE" envDefault:"sessions"`
	SupabasePoll  time.Duration `env:"SUPABASE_POLL_INTERVAL" envDefault:"2s"`

	// GeminiAPIKey empty means the server runs with fallback narration
	// only.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`
}

// LoadConfig parses configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
