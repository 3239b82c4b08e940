package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	statusCreator       = "creator"
	statusAdministrator = "administrator"
)

// Client adapts the Bot API to the calls the quiz engine needs. The underlying
// library is synchronous, so ctx is only checked before each request.
type Client struct {
	api    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// Dial authenticates with the Bot API (getMe) and returns a client.
func Dial(token string, debug bool, logger zerolog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = debug
	return NewClient(api, logger), nil
}

// NewClient wraps an existing BotAPI.
func NewClient(api *tgbotapi.BotAPI, logger zerolog.Logger) *Client {
	return &Client{
		api:    api,
		logger: logger.With().Str("component", "telegram").Logger(),
	}
}

// API exposes the raw BotAPI for the update poller.
func (c *Client) API() *tgbotapi.BotAPI {
	return c.api
}

// Username returns the bot's own username.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// SendMessage posts plain text and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// SendPoll posts a non-anonymous quiz poll.
func (c *Client) SendPoll(ctx context.Context, req PollRequest) (SentPoll, error) {
	if err := ctx.Err(); err != nil {
		return SentPoll{}, err
	}
	cfg := tgbotapi.NewPoll(req.ChatID, req.Question, req.Options...)
	cfg.Type = "quiz"
	cfg.IsAnonymous = false
	cfg.CorrectOptionID = int64(req.CorrectOption)
	if req.OpenPeriod > 0 {
		cfg.OpenPeriod = int(req.OpenPeriod / time.Second)
	}

	sent, err := c.api.Send(cfg)
	if err != nil {
		return SentPoll{}, fmt.Errorf("send poll: %w", err)
	}
	if sent.Poll == nil {
		return SentPoll{}, ErrNoPoll
	}
	return SentPoll{PollID: sent.Poll.ID, MessageID: sent.MessageID}, nil
}

// EditMessage replaces the text of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// StopPoll closes an open poll.
func (c *Client) StopPoll(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.StopPoll(tgbotapi.NewStopPoll(chatID, messageID)); err != nil {
		return fmt.Errorf("stop poll: %w", err)
	}
	return nil
}

// IsAdmin reports whether the user is the chat's creator or an administrator.
func (c *Client) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return member.Status == statusCreator || member.Status == statusAdministrator, nil
}
