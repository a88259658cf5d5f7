package bot

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/example/plugwarden/internal/calendar"
)

// Callback actions. The wire form is "\f<action>|arg1|arg2", matching what
// telebot produces for data buttons.
const (
	actionDay     = "day"
	actionSlot    = "slot"
	actionConfirm = "confirm"
	actionBack    = "back"
	actionUnbook  = "unbook"
)

const slotColumns = 4

func callbackData(action string, args ...string) string {
	parts := append([]string{action}, args...)
	return "\f" + strings.Join(parts, "|")
}

// parseCallback splits raw callback data into its action and arguments.
func parseCallback(raw string) (action string, args []string) {
	raw = strings.TrimPrefix(raw, "\f")
	parts := strings.Split(raw, "|")
	if len(parts) == 0 || parts[0] == "" {
		return "", nil
	}
	return parts[0], parts[1:]
}

func dayKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	row := make([]tele.InlineButton, 0, len(calendar.Days))
	for _, day := range calendar.Days {
		row = append(row, tele.InlineButton{
			Text: day,
			Data: callbackData(actionDay, day),
		})
	}
	markup.InlineKeyboard = [][]tele.InlineButton{row}
	return markup
}

// slotKeyboard renders the 48 half-hour slots for a day in a grid, marking
// the requester's current selections.
func slotKeyboard(day string, selected []string) *tele.ReplyMarkup {
	chosen := make(map[string]bool, len(selected))
	for _, slot := range selected {
		chosen[slot] = true
	}

	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, slot := range calendar.Slots() {
		label := slot
		if chosen[slot] {
			label = "✅ " + slot
		}
		row = append(row, tele.InlineButton{
			Text: label,
			Data: callbackData(actionSlot, day, slot),
		})
		if len(row) == slotColumns {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tele.InlineButton{
		{Text: "Confirm", Data: callbackData(actionConfirm, day)},
		{Text: "Back", Data: callbackData(actionBack, day)},
	})

	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func cancelKeyboard(slots []calendar.UserSlot) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	for _, slot := range slots {
		rows = append(rows, []tele.InlineButton{{
			Text: slot.Day + " " + slot.Slot,
			Data: callbackData(actionUnbook, slot.Day, slot.Slot),
		}})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
