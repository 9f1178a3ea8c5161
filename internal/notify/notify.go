// Package notify forwards operational events to managers on Telegram.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"spadesk/internal/bizclock"
	"spadesk/internal/draftsync"
	"spadesk/internal/events"
	"spadesk/internal/schedule"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramSender is the part of *tgbotapi.BotAPI the notifier uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config tunes delivery.
type Config struct {
	ChatIDs []int64
	// FullyBookedCooldown suppresses repeats of the same category alert.
	FullyBookedCooldown time.Duration
	QueueSize           int
	RetryDelays         []time.Duration
}

type message struct {
	text string
}

// Notifier queues messages from the event bus and delivers them in Run.
type Notifier struct {
	bot     TelegramSender
	cfg     Config
	limiter *rate.Limiter
	queue   chan message
	logger  zerolog.Logger

	mu         sync.Mutex
	lastAlerts map[string]time.Time
	now        func() time.Time
}

// NewBotAPI connects to Telegram with the given token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func NewNotifier(bot TelegramSender, cfg Config, logger zerolog.Logger) *Notifier {
	if cfg.FullyBookedCooldown <= 0 {
		cfg.FullyBookedCooldown = 15 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}
	}
	return &Notifier{
		bot:        bot,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(20), 30),
		queue:      make(chan message, cfg.QueueSize),
		logger:     logger.With().Str("component", "notify").Logger(),
		lastAlerts: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Subscribe attaches the notifier to the events managers care about.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.DraftsPublished, n.onPublished)
	bus.Subscribe(events.DraftsDiscarded, n.onDiscarded)
	bus.Subscribe(events.ImportStarted, n.onImport)
	bus.Subscribe(events.FullyBooked, n.onFullyBooked)
}

func (n *Notifier) onPublished(e events.Event) error {
	var res draftsync.PublishResult
	if err := e.Decode(&res); err != nil {
		return err
	}
	text := fmt.Sprintf("✅ Schedule %s published: %d drafts promoted, %d live bookings replaced from %s.",
		res.Scope, res.Promoted, res.Deleted, formatInstant(res.Cutoff))
	if res.MetaMissing {
		text += "\n⚠️ No import cutoff was recorded, the whole month was replaced."
	}
	n.enqueue(text)
	return nil
}

func (n *Notifier) onDiscarded(e events.Event) error {
	var res draftsync.DiscardResult
	if err := e.Decode(&res); err != nil {
		return err
	}
	n.enqueue(fmt.Sprintf("🗑 Drafts for %s discarded (%d rows).", res.Scope, res.Deleted))
	return nil
}

// onImport only speaks up when the import needs a manager's attention.
func (n *Notifier) onImport(e events.Event) error {
	var res draftsync.ImportResult
	if err := e.Decode(&res); err != nil {
		return err
	}
	if len(res.Skipped) == 0 && len(res.SeededStaff) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Import %s: %d rows drafted", res.Scope, res.Drafted)
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(res.Skipped))
		for i, s := range res.Skipped {
			if i == 5 {
				fmt.Fprintf(&b, "\n…and %d more", len(res.Skipped)-i)
				break
			}
			fmt.Fprintf(&b, "\nline %d: %s", s.Line, s.Reason)
		}
	}
	if len(res.SeededStaff) > 0 {
		fmt.Fprintf(&b, "\nNew staff names: %s", strings.Join(res.SeededStaff, ", "))
	}
	n.enqueue(b.String())
	return nil
}

func (n *Notifier) onFullyBooked(e events.Event) error {
	var ev schedule.FullyBookedEvent
	if err := e.Decode(&ev); err != nil {
		return err
	}
	key := string(ev.Category) + "|" + bizclock.FormatDate(ev.StartAt)

	n.mu.Lock()
	now := n.now()
	if last, ok := n.lastAlerts[key]; ok && now.Sub(last) < n.cfg.FullyBookedCooldown {
		n.mu.Unlock()
		return nil
	}
	n.lastAlerts[key] = now
	n.mu.Unlock()

	n.enqueue(fmt.Sprintf("🚫 No free %s on %s %s-%s.", ev.Category, bizclock.FormatDate(ev.StartAt),
		bizclock.FormatClock(ev.StartAt), bizclock.FormatClock(ev.EndAt)))
	return nil
}

func (n *Notifier) enqueue(text string) {
	select {
	case n.queue <- message{text: text}:
	default:
		n.logger.Warn().Str("text", text).Msg("notification queue full, dropping message")
	}
}

// Run delivers queued messages until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.queue:
			for _, chatID := range n.cfg.ChatIDs {
				msg := tgbotapi.NewMessage(chatID, m.text)
				if err := n.send(ctx, msg); err != nil {
					n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to notify manager")
				}
			}
		}
	}
}

// SendDocument sends a file to every manager chat.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	var errs []error
	for _, chatID := range n.cfg.ChatIDs {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: bytes.NewReader(body)})
		doc.Caption = caption
		if err := n.send(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// send delivers one message, honouring Telegram's retry_after and giving up on client errors.
func (n *Notifier) send(ctx context.Context, c tgbotapi.Chattable) error {
	var lastErr error
	for attempt := 0; attempt <= len(n.cfg.RetryDelays); attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		_, err := n.bot.Send(c)
		if err == nil {
			return nil
		}
		lastErr = err

		var wait time.Duration
		if attempt < len(n.cfg.RetryDelays) {
			wait = n.cfg.RetryDelays[attempt]
		}
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch {
			case tgErr.Code == http.StatusTooManyRequests && tgErr.RetryAfter > 0:
				wait = time.Duration(tgErr.RetryAfter) * time.Second
			case tgErr.Code == http.StatusForbidden, tgErr.Code == http.StatusBadRequest:
				return err
			}
		}
		if attempt == len(n.cfg.RetryDelays) {
			break
		}
		n.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("wait", wait).Msg("telegram send failed, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func formatInstant(t time.Time) string {
	return bizclock.FormatDate(t) + " " + bizclock.FormatClock(t)
}
