package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler receives decoded updates. Calls may run concurrently.
type Handler interface {
	HandleAnswer(ctx context.Context, answer Answer)
	HandleCommand(ctx context.Context, cmd Command)
}

// Poller long-polls getUpdates and fans updates out to the handler.
type Poller struct {
	api         *tgbotapi.BotAPI
	handler     Handler
	timeout     time.Duration
	concurrency int
	offset      int
	logger      zerolog.Logger
}

func NewPoller(client *Client, handler Handler, timeout time.Duration, logger zerolog.Logger) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{
		api:         client.API(),
		handler:     handler,
		timeout:     timeout,
		concurrency: 32,
		logger:      logger.With().Str("component", "telegram_poller").Logger(),
	}
}

// Run blocks until ctx is cancelled. In-flight handlers finish before it returns.
func (p *Poller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	p.logger.Info().Str("bot", p.api.Self.UserName).Msg("polling for updates")
	backoff := time.Second

	for gctx.Err() == nil {
		cfg := tgbotapi.NewUpdate(p.offset)
		cfg.Timeout = int(p.timeout / time.Second)
		cfg.AllowedUpdates = []string{"message", "poll_answer"}

		updates, err := p.api.GetUpdates(cfg)
		if err != nil {
			p.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("get updates failed")
			select {
			case <-gctx.Done():
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, update := range updates {
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			update := update
			g.Go(func() error {
				p.dispatch(gctx, update)
				return nil
			})
		}
	}

	_ = g.Wait()
	return ctx.Err()
}

func (p *Poller) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error().Interface("panic", rec).Int("update_id", update.UpdateID).Msg("update handler panicked")
		}
	}()

	switch {
	case update.PollAnswer != nil:
		p.handler.HandleAnswer(ctx, toAnswer(update.PollAnswer))
	case update.Message != nil && update.Message.IsCommand():
		if cmd, ok := toCommand(update.Message, p.api.Self.UserName); ok {
			p.handler.HandleCommand(ctx, cmd)
		}
	}
}

func toAnswer(pa *tgbotapi.PollAnswer) Answer {
	return Answer{
		PollID:    pa.PollID,
		User:      toUser(&pa.User),
		OptionIDs: append([]int(nil), pa.OptionIDs...),
	}
}

// toCommand drops commands explicitly addressed to another bot.
func toCommand(msg *tgbotapi.Message, self string) (Command, bool) {
	if msg.Chat == nil || msg.From == nil {
		return Command{}, false
	}
	full := msg.CommandWithAt()
	if i := strings.Index(full, "@"); i != -1 && self != "" && !strings.EqualFold(full[i+1:], self) {
		return Command{}, false
	}
	return Command{
		ChatID:    msg.Chat.ID,
		Private:   msg.Chat.IsPrivate(),
		MessageID: msg.MessageID,
		User:      toUser(msg.From),
		Name:      strings.ToLower(msg.Command()),
		Args:      strings.TrimSpace(msg.CommandArguments()),
	}, true
}

func toUser(u *tgbotapi.User) User {
	if u == nil {
		return User{}
	}
	return User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Username: u.UserName}
}
