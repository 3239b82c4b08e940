package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lizardjazz1/morning-quiz-bot/internal/auth/jwt"
	"github.com/lizardjazz1/morning-quiz-bot/internal/bot"
	"github.com/lizardjazz1/morning-quiz-bot/internal/config"
	"github.com/lizardjazz1/morning-quiz-bot/internal/db/queries"
	"github.com/lizardjazz1/morning-quiz-bot/internal/db/repository"
	"github.com/lizardjazz1/morning-quiz-bot/internal/db/sqlite"
	"github.com/lizardjazz1/morning-quiz-bot/internal/dispatch"
	"github.com/lizardjazz1/morning-quiz-bot/internal/leaderboard"
	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	"github.com/lizardjazz1/morning-quiz-bot/internal/logging"
	"github.com/lizardjazz1/morning-quiz-bot/internal/metrics"
	"github.com/lizardjazz1/morning-quiz-bot/internal/poll"
	"github.com/lizardjazz1/morning-quiz-bot/internal/question"
	"github.com/lizardjazz1/morning-quiz-bot/internal/quiz"
	"github.com/lizardjazz1/morning-quiz-bot/internal/scheduler"
	"github.com/lizardjazz1/morning-quiz-bot/internal/server"
	"github.com/lizardjazz1/morning-quiz-bot/internal/telegram"
	ws "github.com/lizardjazz1/morning-quiz-bot/pkg/http/ws"
)

const (
	pollerLeaseKey = "quizbot:poller:lease"
	pollerLeaseTTL = 30 * time.Second
)

// Application aggregates shared infrastructure (stores, bot client, HTTP server)
// and the background workers that drive the quiz.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool   *pgxpool.Pool
	redis  *redis.Client
	sqlite *sqlite.Store
	http   *http.Server
	jobs   *scheduler.Registry

	poller      *telegram.Poller
	lease       *telegram.Lease
	flusher     *ledger.FlushWorker
	reloader    *question.Reloader
	publisher   *leaderboard.Publisher
	broadcaster *leaderboard.Broadcaster
}

// New bootstraps logger, score store, question pool, bot client, engine and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Str("store", cfg.Store.Backend).Msg("starting application bootstrap")

	a := &Application{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeStores()
		}
	}()

	pingers := map[string]server.Pinger{}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingers["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	store, err := a.openStore(ctx, pingers)
	if err != nil {
		return nil, err
	}

	scores := ledger.New(nil)
	if store != nil {
		if err := ledger.LoadInto(ctx, scores, store); err != nil {
			return nil, err
		}
		a.flusher = ledger.NewFlushWorker(scores, store, cfg.Store.FlushInterval, logger)
	}

	pool := question.NewFilePool(cfg.Quiz.QuestionsDir, logger)
	if err := pool.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("question pool empty until the directory is readable")
	}
	a.reloader = question.NewReloader(pool, cfg.Quiz.ReloadInterval, logger)

	client, err := telegram.Dial(cfg.Telegram.Token, cfg.Telegram.Debug, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("bot", client.Username()).Msg("telegram authorized")

	loc, err := time.LoadLocation(cfg.Quiz.DailyTimezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Quiz.DailyTimezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}

	quizMetrics := metrics.New(prometheus.DefaultRegisterer)
	polls := poll.NewTable()
	a.jobs = scheduler.NewRegistry(logger)
	dispatcher := dispatch.New(client, polls, dispatch.Options{
		QuestionMax: cfg.Quiz.PollQuestionMax,
		OptionMax:   cfg.Quiz.PollOptionMax,
		Retry: dispatch.RetryPolicy{
			Attempts:      cfg.Retry.Attempts,
			BaseDelay:     cfg.Retry.BaseDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			JitterPercent: cfg.Retry.JitterPercent,
		},
		Limiter: dispatch.NewRateLimiter(cfg.RateLimit.GlobalPerSecond, cfg.RateLimit.ChatPerMinute),
		Metrics: quizMetrics,
	}, logger)

	engine := quiz.NewService(client, pool, dispatcher, polls, scores, a.jobs, quiz.Options{
		OpenPeriod:       cfg.Quiz.OpenPeriod,
		GracePeriod:      cfg.Quiz.GracePeriod,
		SessionQuestions: cfg.Quiz.SessionQuestions,
		AnnounceDelay:    cfg.Quiz.AnnounceDelay,
		Location:         loc,
		Metrics:          quizMetrics,
	}, logger)

	handler := bot.NewHandler(engine, client, loc, logger)
	a.poller = telegram.NewPoller(client, handler, cfg.Telegram.PollTimeout, logger)

	hub := ws.NewHub(logger)
	lbOpts := leaderboard.PublisherOptions{TopN: cfg.Leaderboard.TopN, Channel: cfg.Leaderboard.Channel}
	if a.redis != nil {
		a.lease = telegram.NewLease(a.redis, pollerLeaseKey, pollerLeaseTTL, logger)
		a.publisher = leaderboard.NewPublisher(a.redis, scores, lbOpts, logger)
		a.broadcaster = leaderboard.NewBroadcaster(a.redis, hub, cfg.Leaderboard.Channel, logger)
	} else {
		a.publisher = leaderboard.NewLocalPublisher(hub, scores, lbOpts, logger)
	}
	scores.OnChange(a.publisher.Notify)

	deps := server.Deps{
		Addr:        cfg.HTTPAddr,
		Gatherer:    prometheus.DefaultGatherer,
		Pingers:     pingers,
		Leaderboard: leaderboard.NewHTTPHandler(scores, hub, server.WSUpgrader, cfg.Leaderboard.TopN, logger),
	}
	if cfg.Operator.JWTSecret != "" {
		manager, err := jwt.NewManager(jwt.TokenConfig{
			Secret: []byte(cfg.Operator.JWTSecret),
			Issuer: cfg.Operator.Issuer,
		})
		if err != nil {
			return nil, fmt.Errorf("operator tokens: %w", err)
		}
		deps.Operator = server.NewOperatorHandlers(engine, logger)
		deps.Validator = manager
	}
	a.http = server.NewHTTPServer(deps, logger)

	ok = true
	return a, nil
}

// openStore builds the configured score backend. Memory returns a nil store.
func (a *Application) openStore(ctx context.Context, pingers map[string]server.Pinger) (ledger.Store, error) {
	cfg := a.cfg
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.sqlite = store
		pingers["sqlite"] = store.Ping
		return store, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		pingers["postgres"] = pool.Ping
		return repository.NewScoreRepository(queries.New(pool)), nil
	case config.StoreRedis:
		return ledger.NewRedisStore(a.redis, ""), nil
	default:
		a.logger.Warn().Msg("scores are kept in memory only")
		return nil, nil
	}
}

// Run starts the workers and the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if a.lease != nil {
			return a.lease.Run(gctx, a.poller.Run)
		}
		return a.poller.Run(gctx)
	})
	if a.flusher != nil {
		g.Go(func() error { return a.flusher.Run(gctx) })
	}
	g.Go(func() error { return a.reloader.Run(gctx) })
	g.Go(func() error { return a.publisher.Run(gctx) })
	if a.broadcaster != nil {
		g.Go(func() error { return a.broadcaster.Run(gctx) })
	}

	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
		defer cancel()
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("http shutdown error")
		}
		return nil
	})

	err := g.Wait()
	a.jobs.Stop()
	a.closeStores()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) closeStores() {
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Error().Err(err).Msg("sqlite close error")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}
}
