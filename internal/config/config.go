package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"trivia-arena"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	Duel     Duel
	CORS     CORS
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Redis holds broadcast channel + cache configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Duel groups the timing knobs of the duel engine.
// Tests override the durations with millisecond values.
type Duel struct {
	Format            int           `env:"DUEL_FORMAT" envDefault:"3"` // best-of-N, N odd
	QuestionsPerRound int           `env:"DUEL_QUESTIONS_PER_ROUND" envDefault:"5"`
	PrepareDelay      time.Duration `env:"DUEL_PREPARE_DELAY" envDefault:"5s"`
	StartPulse        time.Duration `env:"DUEL_START_PULSE" envDefault:"500ms"`
	QuestionCountdown time.Duration `env:"DUEL_QUESTION_COUNTDOWN" envDefault:"10s"`
	RevealDelay       time.Duration `env:"DUEL_REVEAL_DELAY" envDefault:"1s"`
	TransitionWindow  time.Duration `env:"DUEL_TRANSITION_WINDOW" envDefault:"4s"`
	RoundIntroWindow  time.Duration `env:"DUEL_ROUND_INTRO_WINDOW" envDefault:"2s"`
	SetResultWindow   time.Duration `env:"DUEL_SET_RESULT_WINDOW" envDefault:"2s"`
	HeartbeatInterval time.Duration `env:"DUEL_HEARTBEAT_INTERVAL" envDefault:"2s"`
	ReconnectBackoff  time.Duration `env:"DUEL_RECONNECT_BACKOFF" envDefault:"3s"`
	MaxReconnects     int           `env:"DUEL_MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Duel.Format < 1 || cfg.Duel.Format%2 == 0 {
		return nil, fmt.Errorf("DUEL_FORMAT must be a positive odd number, got %d", cfg.Duel.Format)
	}
	return cfg, nil
}
