package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Score store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"morning-quiz-bot"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`

	Telegram    Telegram
	Quiz        Quiz
	Retry       Retry
	RateLimit   RateLimit
	Store       Store
	Postgres    Postgres
	Redis       Redis
	SQLite      SQLite
	Operator    Operator
	Leaderboard Leaderboard
}

// Telegram configures the Bot API client.
type Telegram struct {
	Token       string        `env:"TELEGRAM_BOT_TOKEN,notEmpty"`
	PollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"30s"`
	Debug       bool          `env:"TELEGRAM_DEBUG" envDefault:"false"`
}

// Quiz groups gameplay defaults.
type Quiz struct {
	OpenPeriod       time.Duration `env:"QUIZ_OPEN_PERIOD" envDefault:"25s"`
	GracePeriod      time.Duration `env:"QUIZ_GRACE_PERIOD" envDefault:"1s"`
	SessionQuestions int           `env:"QUIZ_SESSION_QUESTIONS" envDefault:"10"`
	AnnounceDelay    time.Duration `env:"QUIZ_ANNOUNCE_DELAY" envDefault:"2m"`
	QuestionsDir     string        `env:"QUIZ_QUESTIONS_DIR" envDefault:"data/questions"`
	ReloadInterval   time.Duration `env:"QUIZ_RELOAD_INTERVAL" envDefault:"0s"`
	PollQuestionMax  int           `env:"QUIZ_POLL_QUESTION_MAX" envDefault:"300"`
	PollOptionMax    int           `env:"QUIZ_POLL_OPTION_MAX" envDefault:"100"`
	DailyTimezone    string        `env:"QUIZ_DAILY_TIMEZONE" envDefault:"Europe/Moscow"`
}

// Retry tunes the poll dispatcher's backoff for transient send failures.
type Retry struct {
	Attempts      uint64        `env:"SEND_RETRY_ATTEMPTS" envDefault:"3"`
	BaseDelay     time.Duration `env:"SEND_RETRY_BASE" envDefault:"500ms"`
	MaxDelay      time.Duration `env:"SEND_RETRY_MAX" envDefault:"5s"`
	JitterPercent uint64        `env:"SEND_RETRY_JITTER_PERCENT" envDefault:"20"`
}

// RateLimit caps outbound Bot API traffic.
type RateLimit struct {
	GlobalPerSecond int `env:"RATE_GLOBAL_PER_SECOND" envDefault:"25"`
	ChatPerMinute   int `env:"RATE_CHAT_PER_MINUTE" envDefault:"18"`
}

// Store selects the score persistence backend.
type Store struct {
	Backend       string        `env:"SCORE_STORE" envDefault:"sqlite"`
	FlushInterval time.Duration `env:"SCORE_FLUSH_INTERVAL" envDefault:"30s"`
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:""`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:""`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:""`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// Redis holds cache + pub/sub configuration. Empty Addr disables Redis.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// SQLite points at the single-file score database.
type SQLite struct {
	Path string `env:"SQLITE_PATH" envDefault:"data/scores.db"`
}

// Operator configures bearer-token access to the HTTP control API.
type Operator struct {
	JWTSecret string `env:"OPERATOR_JWT_SECRET" envDefault:""`
	Issuer    string `env:"OPERATOR_JWT_ISSUER" envDefault:"morning-quiz-bot"`
}

// Leaderboard governs live leaderboard publishing.
type Leaderboard struct {
	Channel string `env:"LEADERBOARD_CHANNEL" envDefault:"lb:updates"`
	TopN    int    `env:"LEADERBOARD_TOP" envDefault:"10"`
}

const (
	minOpenPeriod = 10 * time.Second
	maxOpenPeriod = 600 * time.Second
)

// DSN renders a pgx connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode, p.MaxConns)
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *App) validate() error {
	c.Quiz.OpenPeriod = ClampOpenPeriod(c.Quiz.OpenPeriod)
	if c.Quiz.SessionQuestions <= 0 {
		return fmt.Errorf("QUIZ_SESSION_QUESTIONS must be positive, got %d", c.Quiz.SessionQuestions)
	}
	switch c.Store.Backend {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.Database == "" {
			return fmt.Errorf("SCORE_STORE=postgres requires PG_HOST, PG_USER and PG_DATABASE")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("SCORE_STORE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown SCORE_STORE %q", c.Store.Backend)
	}
	return nil
}

// ClampOpenPeriod keeps a poll's open period inside the platform's accepted range.
func ClampOpenPeriod(d time.Duration) time.Duration {
	if d < minOpenPeriod {
		return minOpenPeriod
	}
	if d > maxOpenPeriod {
		return maxOpenPeriod
	}
	return d
}
