// Package bot is the owner's Telegram console: it answers the decision
// buttons on booking requests and lists bookings on demand.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
	"holidaylet/internal/notify"
	"holidaylet/shared/access"
)

const helpText = "Commands:\n" +
	"/pending - booking requests waiting for a decision\n" +
	"/upcoming - provisional and confirmed stays from today\n" +
	"/digest - tomorrow's arrivals and departures\n" +
	"/help - this message"

// Bot talks to the owner chat only; messages from other chats are refused.
type Bot struct {
	tg          telegramClient
	bookings    BookingService
	ownerChatID int64
	loc         *time.Location
	now         func() time.Time
	logger      *zerolog.Logger
}

func New(api *tgbotapi.BotAPI, bookings BookingService, ownerChatID int64, loc *time.Location, logger *zerolog.Logger) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram api is nil")
	}
	return newBot(&realTelegramClient{api: api}, bookings, ownerChatID, loc, logger), nil
}

func newBot(tg telegramClient, bookings BookingService, ownerChatID int64, loc *time.Location, logger *zerolog.Logger) *Bot {
	if loc == nil {
		loc = time.Local
	}
	l := logger.With().Str("component", "bot").Logger()
	return &Bot{
		tg:          tg,
		bookings:    bookings,
		ownerChatID: ownerChatID,
		loc:         loc,
		now:         time.Now,
		logger:      &l,
	}
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("owner bot authorized")

	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
			b.handleUpdate(l.WithContext(ctx), &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().Str("data", update.CallbackQuery.Data).Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().Str("text", update.Message.Text).Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if !b.isOwner(msg.Chat.ID) {
		b.reply(msg.Chat.ID, "This bot only talks to the owner.")
		return
	}
	if !msg.IsCommand() {
		b.reply(msg.Chat.ID, helpText)
		return
	}

	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, helpText)
	case "pending":
		b.renderBookingsPage(ctx, msg.Chat.ID, 0, viewPending, 0)
	case "upcoming":
		b.renderBookingsPage(ctx, msg.Chat.ID, 0, viewUpcoming, 0)
	case "digest":
		sent, err := b.sendDigest(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("digest failed")
			b.reply(msg.Chat.ID, "Could not build the digest.")
		} else if !sent {
			b.reply(msg.Chat.ID, "Nothing happening tomorrow.")
		}
	default:
		b.reply(msg.Chat.ID, "Unknown command.\n\n"+helpText)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		_ = b.answerCallback(cq.ID, "")
		return
	}
	chatID := cq.Message.Chat.ID
	if !b.isOwner(chatID) {
		_ = b.answerCallback(cq.ID, "Not allowed")
		return
	}

	data := cq.Data
	switch {
	case strings.HasPrefix(data, notify.CallbackApprove):
		b.handleDecision(ctx, cq, strings.TrimPrefix(data, notify.CallbackApprove), true)
	case strings.HasPrefix(data, notify.CallbackDecline):
		b.handleDecision(ctx, cq, strings.TrimPrefix(data, notify.CallbackDecline), false)
	case strings.HasPrefix(data, callbackPage):
		_ = b.answerCallback(cq.ID, "")
		view, page, ok := parsePageCallback(data)
		if ok {
			b.renderBookingsPage(ctx, chatID, cq.Message.MessageID, view, page)
		}
	default:
		_ = b.answerCallback(cq.ID, "")
	}
}

// handleDecision approves or declines the booking named by idStr and
// replaces the buttons on the request message with the outcome.
func (b *Bot) handleDecision(ctx context.Context, cq *tgbotapi.CallbackQuery, idStr string, approve bool) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		_ = b.answerCallback(cq.ID, "Unknown booking")
		return
	}

	var bk *booking.Booking
	if approve {
		bk, err = b.bookings.Approve(ctx, access.Owner, id)
	} else {
		bk, err = b.bookings.Decline(ctx, access.Owner, id)
	}
	if err != nil {
		text := b.errorText(ctx, err)
		_ = b.answerCallback(cq.ID, text)
		b.reply(cq.Message.Chat.ID, fmt.Sprintf("Booking #%d: %s", id, text))
		return
	}

	outcome := "Approved"
	if bk.Status == booking.StatusDeclined {
		outcome = "Declined"
	}
	_ = b.answerCallback(cq.ID, outcome)

	edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("%s\n\n%s.", cq.Message.Text, outcome))
	if _, err := b.tg.Send(edit); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("booking_id", id).Msg("failed to update request message")
	}
}

func (b *Bot) errorText(ctx context.Context, err error) string {
	switch {
	case booking.IsConflict(err):
		return err.Error()
	case booking.IsTransitionError(err):
		return "this booking can no longer be changed that way"
	case apperr.IsNotFound(err):
		return "booking no longer exists"
	case errors.Is(err, booking.ErrConcurrentModification):
		return "booking changed meanwhile, try again"
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("owner decision failed")
		return "something went wrong"
	}
}

func (b *Bot) isOwner(chatID int64) bool {
	return b.ownerChatID != 0 && chatID == b.ownerChatID
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) answerCallback(id, text string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, text))
	return err
}

func (b *Bot) today() dates.Date {
	return dates.FromTime(b.now().In(b.loc))
}
