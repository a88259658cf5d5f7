// Package calendar implements the weekly booking store: fixed half-hour
// slots per weekday, owned per user, with an ephemeral multi-select layer
// used by the interactive booking flow.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Days enumerates the weekday labels in display order. The labels follow
// time.Time's "Mon" formatting so instants map onto booking days directly.
var Days = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// SlotDuration is the fixed width of every booking window.
const SlotDuration = 30 * time.Minute

var (
	// ErrSlotTaken indicates the requested slot already has a booking.
	ErrSlotTaken = errors.New("calendar: slot already booked")
	// ErrInvalidDay indicates an unknown weekday label.
	ErrInvalidDay = errors.New("calendar: invalid day")
	// ErrInvalidSlot indicates a label outside the fixed half-hour grid.
	ErrInvalidSlot = errors.New("calendar: invalid slot")
)

// BookingRecord captures the owner of a booked slot.
type BookingRecord struct {
	ID       string
	UserID   int64
	Username string
	BookedAt time.Time
}

// UserSlot pairs a booking with its position in the week.
type UserSlot struct {
	Day    string
	Slot   string
	Record BookingRecord
}

// Calendar stores recurring weekly bookings keyed by user, weekday and slot
// label. All methods are safe for concurrent use.
type Calendar struct {
	mu         sync.RWMutex
	bookings   map[int64]map[string]map[string]BookingRecord
	selections map[selectionKey][]string
	newID      func() string
	now        func() time.Time
}

// Option adjusts calendar construction, primarily for tests.
type Option func(*Calendar)

// WithIDGenerator overrides the booking id source.
func WithIDGenerator(gen func() string) Option {
	return func(c *Calendar) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithNow overrides the clock used to stamp bookings.
func WithNow(now func() time.Time) Option {
	return func(c *Calendar) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an empty calendar.
func New(opts ...Option) *Calendar {
	c := &Calendar{
		bookings:   make(map[int64]map[string]map[string]BookingRecord),
		selections: make(map[selectionKey][]string),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Slots returns the 48 half-hour labels of a day in order, "00:00".."23:30".
func Slots() []string {
	slots := make([]string, 0, 48)
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 30} {
			slots = append(slots, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return slots
}

// DayName maps an instant onto its weekday label.
func DayName(t time.Time) string {
	return t.Format("Mon")
}

func validDay(day string) bool {
	for _, d := range Days {
		if d == day {
			return true
		}
	}
	return false
}

// parseSlot accepts exactly the zero-padded "HH:MM" labels produced by
// Slots; trailing text, unpadded hours and off-grid minutes are invalid.
func parseSlot(slot string) (hour, minute int, err error) {
	t, parseErr := time.Parse("15:04", slot)
	if parseErr != nil || len(slot) != 5 {
		return 0, 0, ErrInvalidSlot
	}
	hour, minute = t.Hour(), t.Minute()
	if minute != 0 && minute != 30 {
		return 0, 0, ErrInvalidSlot
	}
	return hour, minute, nil
}

// IsSlotFree reports whether the user has no booking at (day, slot).
func (c *Calendar) IsSlotFree(userID int64, day, slot string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, booked := c.bookings[userID][day][slot]
	return !booked
}

// BookSlot records a booking for the user at (day, slot). It guards against
// overwrites: a taken slot yields ErrSlotTaken instead of last-write-wins.
func (c *Calendar) BookSlot(userID int64, day, slot, username string) (BookingRecord, error) {
	if !validDay(day) {
		return BookingRecord{}, ErrInvalidDay
	}
	if _, _, err := parseSlot(slot); err != nil {
		return BookingRecord{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.bookings[userID][day][slot]; taken {
		return BookingRecord{}, ErrSlotTaken
	}

	record := BookingRecord{
		ID:       c.newID(),
		UserID:   userID,
		Username: username,
		BookedAt: c.now().UTC(),
	}
	if c.bookings[userID] == nil {
		c.bookings[userID] = make(map[string]map[string]BookingRecord)
	}
	if c.bookings[userID][day] == nil {
		c.bookings[userID][day] = make(map[string]BookingRecord)
	}
	c.bookings[userID][day][slot] = record
	return record, nil
}

// CancelSlot removes the user's booking at (day, slot). Cancelling a slot
// that holds no booking is a no-op reported as false.
func (c *Calendar) CancelSlot(userID int64, day, slot string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, booked := c.bookings[userID][day][slot]; !booked {
		return false
	}
	delete(c.bookings[userID][day], slot)
	if len(c.bookings[userID][day]) == 0 {
		delete(c.bookings[userID], day)
	}
	if len(c.bookings[userID]) == 0 {
		delete(c.bookings, userID)
	}
	return true
}

// SlotsForUser lists the user's bookings ordered by weekday then slot.
func (c *Calendar) SlotsForUser(userID int64) []UserSlot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]UserSlot, 0)
	for _, day := range Days {
		slots := c.bookings[userID][day]
		if len(slots) == 0 {
			continue
		}
		labels := make([]string, 0, len(slots))
		for slot := range slots {
			labels = append(labels, slot)
		}
		sort.Strings(labels)
		for _, slot := range labels {
			out = append(out, UserSlot{Day: day, Slot: slot, Record: slots[slot]})
		}
	}
	return out
}

// CoversInstant reports whether now falls inside one of the user's booked
// windows. Windows are half-open [start, start+30m); the final slot of a day
// ends exactly at midnight and never spills into the next day.
func (c *Calendar) CoversInstant(userID int64, now time.Time) bool {
	day := DayName(now)

	c.mu.RLock()
	slots := c.bookings[userID][day]
	labels := make([]string, 0, len(slots))
	for slot := range slots {
		labels = append(labels, slot)
	}
	c.mu.RUnlock()

	for _, slot := range labels {
		hour, minute, err := parseSlot(slot)
		if err != nil {
			continue
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		end := start.Add(SlotDuration)
		if !now.Before(start) && now.Before(end) {
			return true
		}
	}
	return false
}

// WeekText renders every booking grouped by user and weekday, for the admin
// calendar overview.
func (c *Calendar) WeekText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	userIDs := make([]int64, 0, len(c.bookings))
	for id := range c.bookings {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	var b strings.Builder
	for _, id := range userIDs {
		fmt.Fprintf(&b, "User %d:\n", id)
		for _, day := range Days {
			slots := c.bookings[id][day]
			if len(slots) == 0 {
				continue
			}
			labels := make([]string, 0, len(slots))
			for slot := range slots {
				labels = append(labels, slot)
			}
			sort.Strings(labels)
			fmt.Fprintf(&b, "  %s:\n", day)
			for _, slot := range labels {
				fmt.Fprintf(&b, "    %s -> @%s\n", slot, slots[slot].Username)
			}
		}
	}
	if b.Len() == 0 {
		return "(no bookings)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// All returns a deep copy of every booking, for persistence snapshots.
func (c *Calendar) All() map[int64]map[string]map[string]BookingRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[int64]map[string]map[string]BookingRecord, len(c.bookings))
	for userID, days := range c.bookings {
		outDays := make(map[string]map[string]BookingRecord, len(days))
		for day, slots := range days {
			outSlots := make(map[string]BookingRecord, len(slots))
			for slot, record := range slots {
				outSlots[slot] = record
			}
			outDays[day] = outSlots
		}
		out[userID] = outDays
	}
	return out
}

// Restore replaces the booking state with a previously persisted snapshot.
// Entries with malformed day or slot labels are skipped.
func (c *Calendar) Restore(bookings map[int64]map[string]map[string]BookingRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bookings = make(map[int64]map[string]map[string]BookingRecord, len(bookings))
	for userID, days := range bookings {
		for day, slots := range days {
			if !validDay(day) {
				continue
			}
			for slot, record := range slots {
				if _, _, err := parseSlot(slot); err != nil {
					continue
				}
				if c.bookings[userID] == nil {
					c.bookings[userID] = make(map[string]map[string]BookingRecord)
				}
				if c.bookings[userID][day] == nil {
					c.bookings[userID][day] = make(map[string]BookingRecord)
				}
				c.bookings[userID][day][slot] = record
			}
		}
	}
}
