package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
)

// Digest is what the owner needs to prepare for tomorrow.
type Digest struct {
	Day        dates.Date
	Arrivals   []booking.Booking
	Departures []booking.Booking
	// Pending counts provisional requests that have not ended yet.
	Pending    int
}

func (d Digest) Empty() bool {
	return len(d.Arrivals) == 0 && len(d.Departures) == 0 && d.Pending == 0
}

// SendArrivalDigest messages the owner about tomorrow's changeovers. It is
// the daily scheduler job and sends nothing on a quiet day.
func (b *Bot) SendArrivalDigest(ctx context.Context) error {
	_, err := b.sendDigest(ctx)
	return err
}

func (b *Bot) sendDigest(ctx context.Context) (bool, error) {
	d, err := b.buildDigest(ctx)
	if err != nil {
		return false, err
	}
	if d.Empty() {
		return false, nil
	}
	if _, err := b.tg.Send(tgbotapi.NewMessage(b.ownerChatID, formatDigest(d))); err != nil {
		return false, fmt.Errorf("send digest: %w", err)
	}
	return true, nil
}

func (b *Bot) buildDigest(ctx context.Context) (Digest, error) {
	today := b.today()
	tomorrow := today.AddDays(1)
	d := Digest{Day: tomorrow}

	window := dates.NewInterval(today, tomorrow.AddDays(1))
	confirmed, err := b.bookings.List(ctx, booking.Filter{
		Statuses:    []booking.Status{booking.StatusConfirmed},
		Overlapping: &window,
	})
	if err != nil {
		return d, fmt.Errorf("list confirmed: %w", err)
	}
	for _, bk := range confirmed {
		if bk.Start == tomorrow {
			d.Arrivals = append(d.Arrivals, bk)
		}
		if bk.End == tomorrow {
			d.Departures = append(d.Departures, bk)
		}
	}

	pending, err := b.bookings.List(ctx, booking.Filter{Statuses: []booking.Status{booking.StatusProvisional}})
	if err != nil {
		return d, fmt.Errorf("list pending: %w", err)
	}
	for _, bk := range pending {
		if bk.End.After(today) {
			d.Pending++
		}
	}
	return d, nil
}

func formatDigest(d Digest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tomorrow, %s %s", d.Day.Weekday(), d.Day)
	writeSection(&sb, "Arrivals", d.Arrivals)
	writeSection(&sb, "Departures", d.Departures)
	if d.Pending > 0 {
		fmt.Fprintf(&sb, "\n\n%d booking request(s) waiting for a decision. /pending", d.Pending)
	}
	return sb.String()
}

func writeSection(sb *strings.Builder, title string, list []booking.Booking) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n\n%s:", title)
	for _, bk := range list {
		fmt.Fprintf(sb, "\n#%d %s", bk.ID, bk.Interval)
		if bk.GuestName != "" {
			fmt.Fprintf(sb, " %s", bk.GuestName)
		}
		if bk.GuestsCount != nil {
			fmt.Fprintf(sb, ", %d guests", *bk.GuestsCount)
		}
		if bk.DogsCount != nil && *bk.DogsCount > 0 {
			fmt.Fprintf(sb, ", %d dogs", *bk.DogsCount)
		}
		if bk.VehicleReg != "" {
			fmt.Fprintf(sb, ", car %s", bk.VehicleReg)
		}
	}
}
