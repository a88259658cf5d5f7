package bot

import (
	"reflect"
	"testing"

	"github.com/example/plugwarden/internal/calendar"
)

func TestCallbackRoundTrip(t *testing.T) {
	cases := []struct {
		action string
		args   []string
	}{
		{actionDay, []string{"Mon"}},
		{actionSlot, []string{"Wed", "15:30"}},
		{actionConfirm, []string{"Sun"}},
		{actionUnbook, []string{"Fri", "23:30"}},
	}
	for _, tc := range cases {
		action, args := parseCallback(callbackData(tc.action, tc.args...))
		if action != tc.action || !reflect.DeepEqual(args, tc.args) {
			t.Errorf("round trip %s %v -> %s %v", tc.action, tc.args, action, args)
		}
	}
}

func TestParseCallbackToleratesMissingPrefix(t *testing.T) {
	action, args := parseCallback("day|Tue")
	if action != actionDay || len(args) != 1 || args[0] != "Tue" {
		t.Fatalf("got %s %v", action, args)
	}
}

func TestParseCallbackEmpty(t *testing.T) {
	if action, _ := parseCallback(""); action != "" {
		t.Fatalf("expected empty action, got %q", action)
	}
}

func TestDayKeyboardListsAllDays(t *testing.T) {
	markup := dayKeyboard()
	if len(markup.InlineKeyboard) != 1 {
		t.Fatalf("expected one row, got %d", len(markup.InlineKeyboard))
	}
	row := markup.InlineKeyboard[0]
	if len(row) != len(calendar.Days) {
		t.Fatalf("expected %d day buttons, got %d", len(calendar.Days), len(row))
	}
	for i, day := range calendar.Days {
		if row[i].Text != day {
			t.Errorf("button %d = %q, want %q", i, row[i].Text, day)
		}
	}
}

func TestSlotKeyboardMarksSelections(t *testing.T) {
	markup := slotKeyboard("Mon", []string{"15:00", "15:30"})

	buttons := 0
	marked := 0
	for _, row := range markup.InlineKeyboard[:len(markup.InlineKeyboard)-1] {
		for _, btn := range row {
			buttons++
			if btn.Text == "✅ 15:00" || btn.Text == "✅ 15:30" {
				marked++
			}
		}
	}
	if buttons != 48 {
		t.Errorf("expected 48 slot buttons, got %d", buttons)
	}
	if marked != 2 {
		t.Errorf("expected 2 marked buttons, got %d", marked)
	}

	controls := markup.InlineKeyboard[len(markup.InlineKeyboard)-1]
	if len(controls) != 2 || controls[0].Text != "Confirm" || controls[1].Text != "Back" {
		t.Errorf("unexpected control row: %v", controls)
	}
}

func TestCancelKeyboard(t *testing.T) {
	markup := cancelKeyboard([]calendar.UserSlot{
		{Day: "Mon", Slot: "19:00"},
		{Day: "Tue", Slot: "20:30"},
	})
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(markup.InlineKeyboard))
	}
	action, args := parseCallback(markup.InlineKeyboard[1][0].Data)
	if action != actionUnbook || args[0] != "Tue" || args[1] != "20:30" {
		t.Fatalf("got %s %v", action, args)
	}
}
