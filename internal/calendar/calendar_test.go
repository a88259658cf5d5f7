package calendar

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestCalendar() *Calendar {
	seq := 0
	return New(
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("booking-%d", seq)
		}),
		WithNow(fixedClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))),
	)
}

func TestSlotsEnumeratesFullDay(t *testing.T) {
	slots := Slots()
	if len(slots) != 48 {
		t.Fatalf("expected 48 slots per day, got %d", len(slots))
	}
	if slots[0] != "00:00" {
		t.Fatalf("expected first slot 00:00, got %s", slots[0])
	}
	if slots[47] != "23:30" {
		t.Fatalf("expected last slot 23:30, got %s", slots[47])
	}
}

func TestBookSlotThenCancel(t *testing.T) {
	cal := newTestCalendar()

	if !cal.IsSlotFree(1, "Mon", "07:30") {
		t.Fatalf("expected fresh slot to be free")
	}

	record, err := cal.BookSlot(1, "Mon", "07:30", "alice")
	if err != nil {
		t.Fatalf("BookSlot returned error: %v", err)
	}
	if record.ID == "" || record.Username != "alice" {
		t.Fatalf("unexpected booking record: %+v", record)
	}
	if cal.IsSlotFree(1, "Mon", "07:30") {
		t.Fatalf("expected slot to be occupied after booking")
	}

	if !cal.CancelSlot(1, "Mon", "07:30") {
		t.Fatalf("expected cancel of existing booking to succeed")
	}
	if !cal.IsSlotFree(1, "Mon", "07:30") {
		t.Fatalf("expected slot to be free after cancellation")
	}
}

func TestBookSlotGuardsAgainstOverwrite(t *testing.T) {
	cal := newTestCalendar()

	if _, err := cal.BookSlot(1, "Tue", "18:00", "alice"); err != nil {
		t.Fatalf("BookSlot returned error: %v", err)
	}
	if _, err := cal.BookSlot(1, "Tue", "18:00", "alice"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBookSlotRejectsMalformedInput(t *testing.T) {
	cal := newTestCalendar()

	if _, err := cal.BookSlot(1, "Monday", "07:30", "alice"); !errors.Is(err, ErrInvalidDay) {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}
	for _, slot := range []string{"07:15", "24:00", "7:30x", "07:30 ", "7:30", "+7:30", ""} {
		if _, err := cal.BookSlot(1, "Mon", slot, "alice"); !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("expected ErrInvalidSlot for %q, got %v", slot, err)
		}
	}
}

func TestCancelMissingBookingIsNoOp(t *testing.T) {
	cal := newTestCalendar()
	if cal.CancelSlot(1, "Mon", "10:00") {
		t.Fatalf("expected cancel of missing booking to report false")
	}
}

func TestCoversInstantHalfOpenWindows(t *testing.T) {
	cal := newTestCalendar()

	// 2026-03-02 is a Monday.
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	for _, slot := range Slots() {
		if _, err := cal.BookSlot(7, "Mon", slot, "alice"); err != nil {
			t.Fatalf("BookSlot(%s) returned error: %v", slot, err)
		}
	}

	for i, slot := range Slots() {
		start := monday.Add(time.Duration(i) * SlotDuration)

		if !cal.CoversInstant(7, start) {
			t.Fatalf("expected slot %s to cover its start instant", slot)
		}
		if !cal.CoversInstant(7, start.Add(SlotDuration-time.Second)) {
			t.Fatalf("expected slot %s to cover an instant just before its end", slot)
		}
	}

	// The end of the last slot is Tuesday 00:00 and no Tuesday booking exists.
	tuesday := monday.AddDate(0, 0, 1)
	if cal.CoversInstant(7, tuesday) {
		t.Fatalf("expected last slot of Monday not to overflow into Tuesday")
	}
}

func TestCoversInstantSlotBoundary(t *testing.T) {
	cal := newTestCalendar()
	if _, err := cal.BookSlot(7, "Mon", "09:00", "alice"); err != nil {
		t.Fatalf("BookSlot returned error: %v", err)
	}

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if cal.CoversInstant(7, monday.Add(8*time.Hour+59*time.Minute)) {
		t.Fatalf("expected instant before window to be uncovered")
	}
	if !cal.CoversInstant(7, monday.Add(9*time.Hour)) {
		t.Fatalf("expected start of window to be covered")
	}
	if cal.CoversInstant(7, monday.Add(9*time.Hour+30*time.Minute)) {
		t.Fatalf("expected end of window to be uncovered (half-open)")
	}
}

func TestSlotsForUserOrdering(t *testing.T) {
	cal := newTestCalendar()
	for _, booking := range []struct{ day, slot string }{
		{"Sun", "10:00"},
		{"Mon", "18:30"},
		{"Mon", "07:00"},
	} {
		if _, err := cal.BookSlot(3, booking.day, booking.slot, "bob"); err != nil {
			t.Fatalf("BookSlot returned error: %v", err)
		}
	}

	slots := cal.SlotsForUser(3)
	if len(slots) != 3 {
		t.Fatalf("expected 3 bookings, got %d", len(slots))
	}
	want := []struct{ day, slot string }{{"Mon", "07:00"}, {"Mon", "18:30"}, {"Sun", "10:00"}}
	for i, w := range want {
		if slots[i].Day != w.day || slots[i].Slot != w.slot {
			t.Fatalf("unexpected ordering at %d: got %s %s, want %s %s", i, slots[i].Day, slots[i].Slot, w.day, w.slot)
		}
	}
}

func TestRestoreSkipsMalformedEntries(t *testing.T) {
	cal := newTestCalendar()
	cal.Restore(map[int64]map[string]map[string]BookingRecord{
		5: {
			"Mon":     {"07:30": {UserID: 5, Username: "carol"}},
			"Someday": {"07:30": {UserID: 5, Username: "carol"}},
			"Tue":     {"07:31": {UserID: 5, Username: "carol"}},
		},
	})

	slots := cal.SlotsForUser(5)
	if len(slots) != 1 {
		t.Fatalf("expected only the well-formed booking to survive restore, got %v", slots)
	}
	if slots[0].Day != "Mon" || slots[0].Slot != "07:30" {
		t.Fatalf("unexpected surviving booking: %+v", slots[0])
	}
}

func TestRoundTripThroughSnapshot(t *testing.T) {
	cal := newTestCalendar()
	if _, err := cal.BookSlot(9, "Fri", "20:00", "dave"); err != nil {
		t.Fatalf("BookSlot returned error: %v", err)
	}

	restored := newTestCalendar()
	restored.Restore(cal.All())

	if restored.IsSlotFree(9, "Fri", "20:00") {
		t.Fatalf("expected booking to survive snapshot round trip")
	}
}

func TestSelectionToggleAndClear(t *testing.T) {
	cal := newTestCalendar()

	if selected := cal.ToggleSelection(11, "Wed", "15:00"); !selected {
		t.Fatalf("expected first toggle to select")
	}
	if selected := cal.ToggleSelection(11, "Wed", "16:00"); !selected {
		t.Fatalf("expected toggle of second slot to select")
	}
	if selected := cal.ToggleSelection(11, "Wed", "15:00"); selected {
		t.Fatalf("expected second toggle of same slot to deselect")
	}

	slots := cal.SelectedSlots(11, "Wed")
	if len(slots) != 1 || slots[0] != "16:00" {
		t.Fatalf("unexpected selection state: %v", slots)
	}

	// Selections are scoped per requester and day.
	if got := cal.SelectedSlots(12, "Wed"); len(got) != 0 {
		t.Fatalf("expected other requester's selection to be empty, got %v", got)
	}
	if got := cal.SelectedSlots(11, "Thu"); len(got) != 0 {
		t.Fatalf("expected other day's selection to be empty, got %v", got)
	}

	cal.ClearSelection(11, "Wed")
	if got := cal.SelectedSlots(11, "Wed"); len(got) != 0 {
		t.Fatalf("expected cleared selection to be empty, got %v", got)
	}
}

func TestSelectionsDoNotTouchBookings(t *testing.T) {
	cal := newTestCalendar()
	cal.ToggleSelection(11, "Wed", "15:00")

	if !cal.IsSlotFree(11, "Wed", "15:00") {
		t.Fatalf("expected selection to leave bookings untouched")
	}
	if len(cal.All()) != 0 {
		t.Fatalf("expected snapshot to ignore selections")
	}
}
