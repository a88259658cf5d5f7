package persistence

import "time"

// UserRecord is the persisted form of a user's minute ledger.
type UserRecord struct {
	UserID           int64  `json:"user_id"`
	Username         string `json:"username"`
	DefaultMinutes   int    `json:"default_minutes"`
	RemainingMinutes int    `json:"remaining_minutes"`
	UsedMinutes      int    `json:"used_minutes"`
	ErrorMinutes     int    `json:"error_minutes"`
	AttachedPlug     string `json:"attached_plug,omitempty"`
}

// UsersDocument maps the decimal user id onto its ledger record.
type UsersDocument map[string]UserRecord

// BookingRecord is the persisted form of a single calendar booking.
type BookingRecord struct {
	ID        string    `json:"id,omitempty"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	BookedAt  time.Time `json:"booked_at"`
}

// CalendarDocument nests bookings as user id -> weekday -> slot label.
type CalendarDocument map[string]map[string]map[string]BookingRecord

// DeviceRecord is the persisted descriptor of a managed plug.
type DeviceRecord struct {
	Name        string `json:"name"`
	TopicPrefix string `json:"topic_prefix"`
	Active      bool   `json:"active"`
}

// DevicesDocument lists every configured plug with its administrative state.
type DevicesDocument struct {
	Devices []DeviceRecord `json:"devices"`
}
