package report

import (
	"strings"
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0m"},
		{30 * time.Second, "0m"},
		{17 * time.Minute, "17m"},
		{3*time.Hour + 17*time.Minute, "3h 17m"},
		{51*time.Hour + 5*time.Minute, "2d 3h 5m"},
		{48 * time.Hour, "2d"},
		{-time.Minute, "0m"},
	}
	for _, tc := range cases {
		if got := FormatUptime(tc.in); got != tc.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHalfHourReport(t *testing.T) {
	power := 42.5
	snapshot := Snapshot{
		At:       time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		Uptime:   90 * time.Minute,
		Sequence: 3,
		Plugs: []PlugStatus{
			{Name: "tv", Power: &power, Owner: "@alice", Active: true, LastSeen: time.Date(2026, 3, 2, 14, 29, 0, 0, time.UTC)},
			{Name: "heater", Active: true, InError: true, ErrorMinutes: 12},
			{Name: "spare", Active: false},
		},
		Users: []UserStatus{
			{Username: "alice", Remaining: 40, Used: 20, AttachedPlug: "tv"},
			{Username: "bob", Remaining: 125, ErrorMinutes: 12},
		},
	}

	text := HalfHour(snapshot)
	for _, want := range []string{
		"Half-hour report #3, uptime 1h 30m",
		"tv: 42.5 W",
		"heater: N/A W",
		"ERROR",
		"never seen",
		"@alice: 40m left, used today 20m -> tv",
		"@bob: 125m left, errors 12m",
		"1 plug(s) in error: heater",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "spare") {
		t.Errorf("inactive plug listed in report:\n%s", text)
	}
}

func TestHalfHourReportNoActivePlugs(t *testing.T) {
	text := HalfHour(Snapshot{At: time.Now(), Plugs: []PlugStatus{{Name: "x", Active: false}}})
	if !strings.Contains(text, "no active plugs") {
		t.Errorf("expected no-active-plugs line:\n%s", text)
	}
}

func TestDailyResetReport(t *testing.T) {
	prev := Snapshot{
		Plugs: []PlugStatus{
			{Name: "tv", ErrorMinutes: 30},
			{Name: "heater"},
		},
		Users: []UserStatus{
			{Username: "alice", Used: 85},
			{Username: "bob"},
		},
	}
	resets := []UserReset{
		{Username: "alice", OldRemaining: 15, NewRemaining: 70, ErrorsApplied: 30},
		{Username: "bob", OldRemaining: 125, NewRemaining: 125},
	}
	at := time.Date(2026, 3, 3, 0, 2, 0, 0, time.UTC)

	text := DailyReset(prev, resets, at)
	for _, want := range []string{
		"Previous day: 02/03/2026",
		"Plug errors (total 30m)",
		"tv: 30m in error",
		"Usage (total 85m)",
		"@alice: consumed 85m",
		"@alice: 15m -> 70m (error debt 30m applied)",
		"@bob: 125m -> 125m",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}

func TestStartupBanner(t *testing.T) {
	text := Startup(StartupInfo{
		Broker:          "broker.local",
		Port:            1883,
		PowerThreshold:  30,
		IntervalMinutes: 2,
		DefaultMinutes:  125,
		ActivePlugs:     []string{"tv", "heater"},
		InactivePlugs:   []string{"spare"},
	})
	for _, want := range []string{
		"broker.local:1883",
		"power threshold: 30 W",
		"check interval: 2 minutes",
		"active: tv, heater",
		"inactive: spare",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("banner missing %q:\n%s", want, text)
		}
	}
}
