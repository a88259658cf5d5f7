package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/example/plugwarden/internal/orchestrator"
	"github.com/example/plugwarden/internal/report"
)

const helpText = `Commands:
/mytime - your remaining minutes
/week - the weekly booking calendar
/book - book half-hour slots
/cancel - cancel one of your bookings
/help - this message

Admin commands:
/status - full system snapshot
/addtime @user <minutes> - credit or debit minutes
/setdefault @user <minutes> - change the daily allotment
/attach @user <plug> - bind a plug to a user
/detach @user - release a user's plug
/holiday <plug> <minutes> - add holiday time (negative removes)
/plug <name> on|off - enable or disable enforcement for a plug
/power <name> on|off - command the relay directly
/addplug <name> <topic-prefix> - register a new plug`

func (b *Bot) handleStart(ctx context.Context, c tele.Context) error {
	return c.Send(fmt.Sprintf("Hello @%s! Your screen time is managed here.\n\n%s",
		c.Sender().Username, helpText))
}

func (b *Bot) handleHelp(_ context.Context, c tele.Context) error {
	return c.Send(helpText)
}

func (b *Bot) handleMyTime(_ context.Context, c tele.Context) error {
	status, ok := b.manager.UserStatus(c.Sender().ID)
	if !ok {
		return c.Send("You are not registered yet, send /start first.")
	}
	text := fmt.Sprintf("You have %d of %d minutes left today (used %d).",
		status.Remaining, status.Default, status.Used)
	if status.ErrorMinutes > 0 {
		text += fmt.Sprintf("\nConnectivity errors attributed to you: %d minutes.", status.ErrorMinutes)
	}
	if status.AttachedPlug != "" {
		text += fmt.Sprintf("\nYour plug: %s.", status.AttachedPlug)
	}
	return c.Send(text)
}

func (b *Bot) handleWeek(_ context.Context, c tele.Context) error {
	return c.Send(b.manager.Calendar().WeekText())
}

func (b *Bot) handleBook(_ context.Context, c tele.Context) error {
	return c.Send("Pick a day:", dayKeyboard())
}

func (b *Bot) handleCancel(_ context.Context, c tele.Context) error {
	slots := b.manager.Calendar().SlotsForUser(c.Sender().ID)
	if len(slots) == 0 {
		return c.Send("You have no bookings.")
	}
	return c.Send("Pick a booking to cancel:", cancelKeyboard(slots))
}

func (b *Bot) handleStatus(_ context.Context, c tele.Context) error {
	return c.Send(report.HalfHour(b.manager.Snapshot()))
}

func (b *Bot) handleAddTime(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /addtime @user <minutes>")
	}
	userID, err := b.resolveUser(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Send("Minutes must be a number.")
	}
	if err := b.manager.AddMinutes(ctx, userID, minutes); err != nil {
		return c.Send(err.Error())
	}
	status, _ := b.manager.UserStatus(userID)
	return c.Send(fmt.Sprintf("@%s now has %d minutes left.", status.Username, status.Remaining))
}

func (b *Bot) handleSetDefault(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /setdefault @user <minutes>")
	}
	userID, err := b.resolveUser(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes < 0 {
		return c.Send("Minutes must be a non-negative number.")
	}
	if err := b.manager.SetDefaultMinutes(ctx, userID, minutes); err != nil {
		return c.Send(err.Error())
	}
	return c.Send(fmt.Sprintf("Daily allotment set to %d minutes.", minutes))
}

func (b *Bot) handleAttach(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /attach @user <plug>")
	}
	userID, err := b.resolveUser(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	switch err := b.manager.Attach(ctx, userID, args[1]); {
	case errors.Is(err, orchestrator.ErrPlugAttached):
		return c.Send(fmt.Sprintf("%s is already attached to someone else, detach them first.", args[1]))
	case err != nil:
		return c.Send(err.Error())
	}
	return c.Send(fmt.Sprintf("Attached %s to %s.", args[1], args[0]))
}

func (b *Bot) handleDetach(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /detach @user")
	}
	userID, err := b.resolveUser(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	if err := b.manager.Detach(ctx, userID); err != nil {
		return c.Send("That user has no plug attached.")
	}
	return c.Send(fmt.Sprintf("Detached %s.", args[0]))
}

func (b *Bot) handleHoliday(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /holiday <plug> <minutes>")
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Send("Minutes must be a number.")
	}
	total, err := b.manager.AddHolidayMinutes(ctx, args[0], delta)
	if err != nil {
		return c.Send(err.Error())
	}
	if total == 0 {
		return c.Send(fmt.Sprintf("No holiday left for %s, enforcement is active.", args[0]))
	}
	return c.Send(fmt.Sprintf("%s has %d holiday minute(s) left, enforcement suspended.", args[0], total))
}

func (b *Bot) handlePlug(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return c.Send("Usage: /plug <name> on|off")
	}
	if err := b.manager.SetPlugActive(ctx, args[0], args[1] == "on"); err != nil {
		return c.Send(err.Error())
	}
	return c.Send(fmt.Sprintf("Plug %s is now %s.", args[0], args[1]))
}

func (b *Bot) handlePower(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return c.Send("Usage: /power <name> on|off")
	}
	if err := b.manager.CommandPlug(ctx, args[0], args[1] == "on"); err != nil {
		return c.Send(err.Error())
	}
	return c.Send(fmt.Sprintf("Sent POWER %s to %s.", strings.ToUpper(args[1]), args[0]))
}

func (b *Bot) handleAddPlug(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /addplug <name> <topic-prefix>")
	}
	switch err := b.manager.RegisterPlug(ctx, args[0], args[1]); {
	case errors.Is(err, orchestrator.ErrPlugExists):
		return c.Send(fmt.Sprintf("Plug %s already exists.", args[0]))
	case err != nil:
		return c.Send(err.Error())
	}
	return c.Send(fmt.Sprintf("Registered plug %s (prefix %s).", args[0], args[1]))
}

func (b *Bot) handleCallback(ctx context.Context, c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}
	action, args := parseCallback(callback.Data)
	userID := c.Sender().ID
	cal := b.manager.Calendar()

	switch action {
	case actionDay:
		if len(args) != 1 {
			return c.Respond()
		}
		day := args[0]
		return c.Edit(slotPrompt(day), slotKeyboard(day, cal.SelectedSlots(userID, day)))

	case actionSlot:
		if len(args) != 2 {
			return c.Respond()
		}
		day := args[0]
		cal.ToggleSelection(userID, day, args[1])
		return c.Edit(slotPrompt(day), slotKeyboard(day, cal.SelectedSlots(userID, day)))

	case actionConfirm:
		if len(args) != 1 {
			return c.Respond()
		}
		day := args[0]
		selected := cal.SelectedSlots(userID, day)
		if len(selected) == 0 {
			return c.Respond(&tele.CallbackResponse{Text: "Nothing selected."})
		}
		var booked, taken []string
		for _, slot := range selected {
			if _, err := b.manager.BookSlot(ctx, userID, day, slot); err != nil {
				taken = append(taken, slot)
			} else {
				booked = append(booked, slot)
			}
		}
		cal.ClearSelection(userID, day)
		summary := fmt.Sprintf("Booked %s: %s", day, strings.Join(booked, ", "))
		if len(booked) == 0 {
			summary = "Nothing booked"
		}
		if len(taken) > 0 {
			summary += fmt.Sprintf("\nAlready taken: %s", strings.Join(taken, ", "))
		}
		return c.Edit(summary)

	case actionBack:
		if len(args) == 1 {
			cal.ClearSelection(userID, args[0])
		}
		return c.Edit("Pick a day:", dayKeyboard())

	case actionUnbook:
		if len(args) != 2 {
			return c.Respond()
		}
		if b.manager.CancelSlot(ctx, userID, args[0], args[1]) {
			return c.Edit(fmt.Sprintf("Cancelled %s %s.", args[0], args[1]))
		}
		return c.Edit("That booking is already gone.")
	}
	return c.Respond()
}

func slotPrompt(day string) string {
	return fmt.Sprintf("Slots for %s, tap to select, then confirm:", day)
}
