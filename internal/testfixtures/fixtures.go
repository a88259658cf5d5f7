// Package testfixtures provides deterministic material for tests: a
// controllable clock, record/replay fakes for the notification and device
// channels, and generators for user and plug records.
package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/plugwarden/internal/persistence"
)

var (
	userCounter uint64
	plugCounter uint64
)

var referenceTime = time.Date(2026, time.March, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on a Monday so weekday-sensitive tests are stable.
func ReferenceTime() time.Time {
	return referenceTime
}

// UserOption configures a generated user record.
type UserOption func(*persistence.UserRecord)

// NewUserRecord returns a deterministic user record with optional overrides.
func NewUserRecord(opts ...UserOption) persistence.UserRecord {
	idx := atomic.AddUint64(&userCounter, 1)
	record := persistence.UserRecord{
		UserID:           int64(1000 + idx),
		Username:         fmt.Sprintf("user%03d", idx),
		DefaultMinutes:   125,
		RemainingMinutes: 125,
	}
	for _, opt := range opts {
		opt(&record)
	}
	return record
}

// WithUserID overrides the generated Telegram identifier.
func WithUserID(id int64) UserOption {
	return func(r *persistence.UserRecord) {
		r.UserID = id
	}
}

// WithUsername overrides the generated username.
func WithUsername(name string) UserOption {
	return func(r *persistence.UserRecord) {
		r.Username = name
	}
}

// WithMinutes overrides the default and remaining minute counters together.
func WithMinutes(defaultMinutes, remaining int) UserOption {
	return func(r *persistence.UserRecord) {
		r.DefaultMinutes = defaultMinutes
		r.RemainingMinutes = remaining
	}
}

// WithAttachedPlug overrides the plug attachment.
func WithAttachedPlug(name string) UserOption {
	return func(r *persistence.UserRecord) {
		r.AttachedPlug = name
	}
}

// PlugOption configures a generated device record.
type PlugOption func(*persistence.DeviceRecord)

// NewDeviceRecord returns a deterministic device record with optional
// overrides.
func NewDeviceRecord(opts ...PlugOption) persistence.DeviceRecord {
	idx := atomic.AddUint64(&plugCounter, 1)
	record := persistence.DeviceRecord{
		Name:        fmt.Sprintf("plug%03d", idx),
		TopicPrefix: fmt.Sprintf("tasmota_%03d", idx),
		Active:      true,
	}
	for _, opt := range opts {
		opt(&record)
	}
	return record
}

// WithPlugName overrides the generated plug name.
func WithPlugName(name string) PlugOption {
	return func(r *persistence.DeviceRecord) {
		r.Name = name
	}
}

// WithPlugActive overrides the active flag.
func WithPlugActive(active bool) PlugOption {
	return func(r *persistence.DeviceRecord) {
		r.Active = active
	}
}
