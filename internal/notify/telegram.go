// Package notify tells the owner about booking activity over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"holidaylet/internal/booking"
	"holidaylet/internal/events"
)

// TelegramSender is the part of *tgbotapi.BotAPI the notifier uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

// Config for the Telegram notifier.
type Config struct {
	ChatID    int64
	QueueSize int
	// PerSecond limits messages to the owner chat.
	PerSecond float64
	Retry     RetryConfig
}

// Notifier queues owner messages and delivers them from Run.
type Notifier struct {
	sender  TelegramSender
	chatID  int64
	queue   chan tgbotapi.Chattable
	limiter *rate.Limiter
	retry   RetryConfig
	logger  zerolog.Logger
}

func NewNotifier(sender TelegramSender, cfg Config, logger *zerolog.Logger) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 1
	}
	if cfg.Retry.RetryDelays == nil {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Notifier{
		sender:  sender,
		chatID:  cfg.ChatID,
		queue:   make(chan tgbotapi.Chattable, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), 1),
		retry:   cfg.Retry,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers the notifier for the events the owner cares about.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(n.handleBooking,
		events.BookingRequested, events.BookingCreated, events.BookingApproved, events.BookingDeclined)
	bus.Subscribe(n.handleImport, events.BookingsImported)
}

func (n *Notifier) handleBooking(ev events.Event) error {
	var b booking.Booking
	if err := ev.Decode(&b); err != nil {
		return err
	}
	msg := n.message(FormatBooking(ev.Type, &b))
	if ev.Type == events.BookingRequested {
		msg.ReplyMarkup = DecisionKeyboard(b.ID)
	}
	n.enqueue(msg)
	return nil
}

func (n *Notifier) handleImport(ev events.Event) error {
	var res struct {
		Mode     string   `json:"mode"`
		Imported int      `json:"imported"`
		Skipped  int      `json:"skipped"`
		Errors   []string `json:"errors"`
	}
	if err := ev.Decode(&res); err != nil {
		return err
	}
	text := fmt.Sprintf("Import (%s): %d imported, %d skipped", res.Mode, res.Imported, res.Skipped)
	if len(res.Errors) > 0 {
		text += "\n" + strings.Join(res.Errors[:min(len(res.Errors), 5)], "\n")
	}
	n.Enqueue(text)
	return nil
}

// Enqueue queues a text message for the owner. It never blocks; when the
// queue is full the message is dropped and logged.
func (n *Notifier) Enqueue(text string) {
	n.enqueue(n.message(text))
}

func (n *Notifier) message(text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	return msg
}

func (n *Notifier) enqueue(msg tgbotapi.MessageConfig) {
	select {
	case n.queue <- msg:
	default:
		n.logger.Warn().Str("text", msg.Text).Msg("notification queue full, message dropped")
	}
}

// Callback data prefixes for the owner's decision buttons.
const (
	CallbackApprove = "approve:"
	CallbackDecline = "decline:"
)

// DecisionKeyboard is attached to booking requests so the owner can answer
// from the chat.
func DecisionKeyboard(bookingID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", fmt.Sprintf("%s%d", CallbackApprove, bookingID)),
			tgbotapi.NewInlineKeyboardButtonData("Decline", fmt.Sprintf("%s%d", CallbackDecline, bookingID)),
		),
	)
}

// Run delivers queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.sendWithRetry(ctx, msg); err != nil && ctx.Err() == nil {
				n.logger.Error().Err(err).Msg("notification not delivered")
			}
		}
	}
}

// SendDocument uploads a file to the owner chat and waits for delivery.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	doc := tgbotapi.NewDocument(n.chatID, tgbotapi.FileReader{Name: filename, Reader: data})
	doc.Caption = caption
	return n.sendWithRetry(ctx, doc)
}

func (n *Notifier) sendWithRetry(ctx context.Context, c tgbotapi.Chattable) error {
	var lastErr error
	for attempt := 0; attempt <= n.retry.MaxRetries; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		_, err := n.sender.Send(c)
		if err == nil {
			return nil
		}
		lastErr = err

		wait := n.delay(attempt)
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch {
			case tgErr.Code == 429 && tgErr.RetryAfter > 0:
				wait = time.Duration(tgErr.RetryAfter) * time.Second
			case tgErr.Code == 400 || tgErr.Code == 403:
				// Bad chat id or the owner blocked the bot; retrying will not help.
				return err
			}
		}

		if attempt == n.retry.MaxRetries {
			break
		}
		n.logger.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", wait).Msg("retrying telegram send")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (n *Notifier) delay(attempt int) time.Duration {
	delays := n.retry.RetryDelays
	if len(delays) == 0 {
		return time.Second
	}
	return delays[min(attempt, len(delays)-1)]
}

// FormatBooking renders a lifecycle event for the owner.
func FormatBooking(eventType string, b *booking.Booking) string {
	var title string
	switch eventType {
	case events.BookingRequested:
		title = "New booking request"
	case events.BookingCreated:
		title = "Booking created"
	case events.BookingApproved:
		title = "Booking approved"
	case events.BookingDeclined:
		title = "Booking declined"
	default:
		title = eventType
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s #%d\n%s (%d nights)", title, b.ID, b.Interval, b.Nights())
	if b.GuestName != "" {
		fmt.Fprintf(&sb, "\nGuest: %s", b.GuestName)
	}
	if contact := firstNonEmpty(b.GuestEmail, b.Phone, b.Contact); contact != "" {
		fmt.Fprintf(&sb, "\nContact: %s", contact)
	}
	if b.GuestsCount != nil {
		fmt.Fprintf(&sb, "\nGuests: %d", *b.GuestsCount)
		if b.ChildrenCount != nil && *b.ChildrenCount > 0 {
			fmt.Fprintf(&sb, " (%d children)", *b.ChildrenCount)
		}
	}
	if b.DogsCount != nil && *b.DogsCount > 0 {
		fmt.Fprintf(&sb, "\nDogs: %d", *b.DogsCount)
	}
	if b.SpecialRequests != "" {
		fmt.Fprintf(&sb, "\nRequests: %s", b.SpecialRequests)
	}
	return sb.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
