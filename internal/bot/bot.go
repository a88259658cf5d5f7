// Package bot is the Telegram front-end: the command surface for users and
// admins, the inline booking flow, and the broadcast notifier the
// orchestrator announces through.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/example/plugwarden/internal/config"
	"github.com/example/plugwarden/internal/logging"
	"github.com/example/plugwarden/internal/orchestrator"
)

const handlerTimeout = 10 * time.Second

// Bot wires the Telegram API to the orchestrator.
type Bot struct {
	bot     *tele.Bot
	manager *orchestrator.Manager
	cfg     *config.Config
	logger  *slog.Logger
}

// New connects to the Telegram API and registers the command handlers.
func New(cfg *config.Config, manager *orchestrator.Manager, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	inner, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	b := &Bot{bot: inner, manager: manager, cfg: cfg, logger: logger}
	b.registerHandlers()
	return b, nil
}

// Start runs the long-poll loop until the context is cancelled.
func (b *Bot) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.logger.Info("telegram bot polling")
	b.bot.Start()
}

// Broadcast sends a message to the configured group chat. It satisfies the
// orchestrator's Notifier port.
func (b *Bot) Broadcast(ctx context.Context, text string) error {
	if b.cfg.ChatID == 0 {
		b.logger.WarnContext(ctx, "no chat configured, dropping broadcast")
		return nil
	}
	_, err := b.bot.Send(tele.ChatID(b.cfg.ChatID), text)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	return nil
}

// NotifyAdmin sends a message directly to every configured admin, falling
// back to the group chat when none are configured.
func (b *Bot) NotifyAdmin(ctx context.Context, text string) error {
	if len(b.cfg.AdminIDs) == 0 {
		return b.Broadcast(ctx, text)
	}
	var firstErr error
	for _, adminID := range b.cfg.AdminIDs {
		if _, err := b.bot.Send(tele.ChatID(adminID), text); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify admin %d: %w", adminID, err)
		}
	}
	return firstErr
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.withUser(b.handleStart))
	b.bot.Handle("/help", b.withUser(b.handleHelp))
	b.bot.Handle("/mytime", b.withUser(b.handleMyTime))
	b.bot.Handle("/week", b.withUser(b.handleWeek))
	b.bot.Handle("/book", b.withUser(b.handleBook))
	b.bot.Handle("/cancel", b.withUser(b.handleCancel))
	b.bot.Handle(tele.OnCallback, b.withUser(b.handleCallback))

	b.bot.Handle("/status", b.withAdmin(b.handleStatus))
	b.bot.Handle("/addtime", b.withAdmin(b.handleAddTime))
	b.bot.Handle("/setdefault", b.withAdmin(b.handleSetDefault))
	b.bot.Handle("/attach", b.withAdmin(b.handleAttach))
	b.bot.Handle("/detach", b.withAdmin(b.handleDetach))
	b.bot.Handle("/holiday", b.withAdmin(b.handleHoliday))
	b.bot.Handle("/plug", b.withAdmin(b.handlePlug))
	b.bot.Handle("/power", b.withAdmin(b.handlePower))
	b.bot.Handle("/addplug", b.withAdmin(b.handleAddPlug))
}

// withUser registers the sender on first contact and bounds the handler with
// a timeout so a stuck store write cannot wedge the poll loop.
func (b *Bot) withUser(next func(context.Context, tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		updateLogger := b.logger.With(slog.Int64("user_id", sender.ID))
		ctx = logging.ContextWithLogger(ctx, updateLogger)
		b.manager.EnsureUser(ctx, sender.ID, sender.Username)
		if err := next(ctx, c); err != nil {
			updateLogger.ErrorContext(ctx, "handler failed", slog.Any("error", err))
			return c.Send("Something went wrong, try again.")
		}
		return nil
	}
}

func (b *Bot) withAdmin(next func(context.Context, tele.Context) error) tele.HandlerFunc {
	return b.withUser(func(ctx context.Context, c tele.Context) error {
		if !b.cfg.IsAdmin(c.Sender().ID) {
			return c.Send("This command is for admins.")
		}
		return next(ctx, c)
	})
}

// resolveUser turns an "@username" or numeric id argument into a user id.
func (b *Bot) resolveUser(token string) (int64, error) {
	if name, ok := strings.CutPrefix(token, "@"); ok {
		for _, user := range b.manager.Snapshot().Users {
			if user.Username == name {
				return user.UserID, nil
			}
		}
		return 0, fmt.Errorf("unknown user %s", token)
	}
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected @username or numeric id, got %q", token)
	}
	return id, nil
}
