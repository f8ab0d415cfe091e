package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
	"holidaylet/internal/notify"
)

const (
	itemsPerPage = 8
	callbackPage = "page:"

	viewPending  = "pending"
	viewUpcoming = "upcoming"
)

// listView loads the bookings behind a paged view.
func (b *Bot) listView(ctx context.Context, view string) ([]booking.Booking, error) {
	switch view {
	case viewPending:
		return b.bookings.List(ctx, booking.Filter{Statuses: []booking.Status{booking.StatusProvisional}})
	default:
		today := b.today()
		window := dates.NewInterval(today, today.AddDays(booking.MaxOccupancyWindow))
		return b.bookings.List(ctx, booking.Filter{
			Statuses:    []booking.Status{booking.StatusProvisional, booking.StatusConfirmed},
			Overlapping: &window,
		})
	}
}

func (b *Bot) renderBookingsPage(ctx context.Context, chatID int64, messageID int, view string, page int) {
	list, err := b.listView(ctx, view)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("view", view).Msg("failed to list bookings")
		b.reply(chatID, "Could not load bookings.")
		return
	}

	text, markup := bookingsPage(list, view, page)
	var msg tgbotapi.Chattable
	switch {
	case messageID != 0 && markup != nil:
		msg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	case messageID != 0:
		msg = tgbotapi.NewEditMessageText(chatID, messageID, text)
	default:
		m := tgbotapi.NewMessage(chatID, text)
		if markup != nil {
			m.ReplyMarkup = *markup
		}
		msg = m
	}
	if _, err := b.tg.Send(msg); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to send bookings page")
	}
}

// bookingsPage renders one page of list. Pending views carry decision
// buttons for every booking shown.
func bookingsPage(list []booking.Booking, view string, page int) (string, *tgbotapi.InlineKeyboardMarkup) {
	title := "Upcoming stays"
	if view == viewPending {
		title = "Pending requests"
	}
	if len(list) == 0 {
		return title + "\n\nNone.", nil
	}

	pages := (len(list) + itemsPerPage - 1) / itemsPerPage
	page = max(0, min(page, pages-1))
	start := page * itemsPerPage
	end := min(start+itemsPerPage, len(list))

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nPage %d of %d\n", title, page+1, pages)
	for _, bk := range list[start:end] {
		fmt.Fprintf(&sb, "\n#%d %s (%d nights) %s", bk.ID, bk.Interval, bk.Nights(), bk.Status)
		if bk.GuestName != "" {
			fmt.Fprintf(&sb, "\n   %s", bk.GuestName)
		}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if view == viewPending {
		for _, bk := range list[start:end] {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Approve #%d", bk.ID), fmt.Sprintf("%s%d", notify.CallbackApprove, bk.ID)),
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Decline #%d", bk.ID), fmt.Sprintf("%s%d", notify.CallbackDecline, bk.ID)),
			))
		}
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("< Prev", pageCallback(view, page-1)))
	}
	if end < len(list) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next >", pageCallback(view, page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	if len(rows) == 0 {
		return sb.String(), nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return sb.String(), &markup
}

func pageCallback(view string, page int) string {
	return fmt.Sprintf("%s%s:%d", callbackPage, view, page)
}

func parsePageCallback(data string) (view string, page int, ok bool) {
	view, n, found := strings.Cut(strings.TrimPrefix(data, callbackPage), ":")
	if !found || (view != viewPending && view != viewUpcoming) {
		return "", 0, false
	}
	page, err := strconv.Atoi(n)
	if err != nil || page < 0 {
		return "", 0, false
	}
	return view, page, true
}
