// Package server assembles the HTTP surface: health, metrics, leaderboards,
// the live feed and the operator API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lizardjazz1/morning-quiz-bot/internal/auth"
	"github.com/lizardjazz1/morning-quiz-bot/internal/leaderboard"
	"github.com/lizardjazz1/morning-quiz-bot/internal/logging"
)

// WSUpgrader handles WebSocket upgrades for the read-only leaderboard feed.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

// Deps carries everything the routes need. Nil members switch routes off.
type Deps struct {
	Addr        string
	Gatherer    prometheus.Gatherer
	Pingers     map[string]Pinger
	Leaderboard *leaderboard.HTTPHandler
	Operator    *OperatorHandlers
	Validator   auth.Validator
}

// NewHTTPServer wires the routes.
func NewHTTPServer(deps Deps, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.IntoContext(r.Context(), logger)
		if err := pingDependencies(ctx, deps.Pingers); err != nil {
			log := logging.FromContext(ctx)
			log.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if deps.Leaderboard != nil {
		mux.HandleFunc("GET /v1/leaderboards/global", deps.Leaderboard.HandleGlobal)
		mux.HandleFunc("GET /v1/leaderboards/rooms/{chat_id}", deps.Leaderboard.HandleRoom)
		mux.HandleFunc("GET /ws/leaderboard", deps.Leaderboard.HandleFeed)
	}

	if deps.Operator != nil && deps.Validator != nil {
		guard := auth.RequireOperator(deps.Validator, logger)
		mux.Handle("GET /v1/rooms/{chat_id}/session", guard(http.HandlerFunc(deps.Operator.GetSession)))
		mux.Handle("POST /v1/rooms/{chat_id}/session", guard(http.HandlerFunc(deps.Operator.StartSession)))
		mux.Handle("DELETE /v1/rooms/{chat_id}/session", guard(http.HandlerFunc(deps.Operator.StopSession)))
	} else {
		logger.Warn().Msg("operator secret not configured; operator API disabled")
	}

	return &http.Server{
		Addr:              deps.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func pingDependencies(ctx context.Context, pingers map[string]Pinger) error {
	var errs []error
	for name, ping := range pingers {
		if err := ping(ctx); err != nil {
			errs = append(errs, errors.New(name+": "+err.Error()))
		}
	}
	return errors.Join(errs...)
}
