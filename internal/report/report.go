// Package report renders the human-readable snapshots the orchestrator
// broadcasts: the startup banner, the half-hour stats report and the daily
// reset report.
package report

import (
	"fmt"
	"strings"
	"time"
)

// PlugStatus is the reportable state of one plug at snapshot time.
type PlugStatus struct {
	Name           string
	Power          *float64
	Owner          string
	Active         bool
	InError        bool
	ErrorMinutes   int
	HolidayMinutes int
	LastSeen       time.Time
}

// UserStatus is the reportable state of one user ledger at snapshot time.
type UserStatus struct {
	UserID       int64
	Username     string
	Default      int
	Remaining    int
	Used         int
	ErrorMinutes int
	AttachedPlug string
}

// Snapshot is a full system snapshot used by the periodic reports and the
// /status command.
type Snapshot struct {
	At       time.Time
	Uptime   time.Duration
	Sequence int
	Plugs    []PlugStatus
	Users    []UserStatus
}

// FormatUptime renders a duration as "2d 3h 17m"; sub-minute uptimes render
// as "0m".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}

func formatPower(power *float64) string {
	if power == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *power)
}

func formatLastSeen(lastSeen, now time.Time) string {
	if lastSeen.IsZero() {
		return "never seen"
	}
	ago := now.Sub(lastSeen)
	if ago < time.Hour {
		return fmt.Sprintf("seen %dm ago", int(ago.Minutes()))
	}
	return fmt.Sprintf("seen %dh ago", int(ago.Hours()))
}

// HalfHour renders the periodic stats report.
func HalfHour(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Half-hour report #%d, uptime %s\n", s.Sequence, FormatUptime(s.Uptime))
	fmt.Fprintf(&b, "Time: %s\n\n", s.At.Format("15:04 - 02/01/2006"))

	b.WriteString("Plugs:\n")
	activeCount := 0
	totalPower := 0.0
	inError := make([]string, 0)
	for _, plug := range s.Plugs {
		if !plug.Active {
			continue
		}
		activeCount++
		if plug.Power != nil {
			totalPower += *plug.Power
		}
		owner := plug.Owner
		if owner == "" {
			owner = "-"
		}
		state := "OK"
		if plug.InError {
			state = "ERROR"
			inError = append(inError, plug.Name)
		}
		holiday := ""
		if plug.HolidayMinutes > 0 {
			holiday = fmt.Sprintf(", holiday %dm", plug.HolidayMinutes)
		}
		fmt.Fprintf(&b, "  - %s: %s W, %s, %s (%s), errors %dm%s\n",
			plug.Name, formatPower(plug.Power), owner, state, formatLastSeen(plug.LastSeen, s.At), plug.ErrorMinutes, holiday)
	}
	if activeCount == 0 {
		b.WriteString("  - no active plugs\n")
	} else {
		fmt.Fprintf(&b, "  - total power: %.1f W\n", totalPower)
	}

	b.WriteString("\nUsers:\n")
	for _, user := range s.Users {
		extra := ""
		if user.ErrorMinutes > 0 {
			extra += fmt.Sprintf(", errors %dm", user.ErrorMinutes)
		}
		if user.Used > 0 {
			extra += fmt.Sprintf(", used today %dm", user.Used)
		}
		attachment := ""
		if user.AttachedPlug != "" {
			attachment = fmt.Sprintf(" -> %s", user.AttachedPlug)
		}
		fmt.Fprintf(&b, "  - @%s: %dm left%s%s\n", user.Username, user.Remaining, extra, attachment)
	}

	if len(inError) > 0 {
		fmt.Fprintf(&b, "\nAlerts: %d plug(s) in error: %s\n", len(inError), strings.Join(inError, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// UserReset describes the outcome of one user's daily reset for reporting.
type UserReset struct {
	Username      string
	OldRemaining  int
	NewRemaining  int
	ErrorsApplied int
}

// DailyReset renders the daily boundary report from the pre-reset snapshot
// and the per-user reset outcomes.
func DailyReset(prev Snapshot, resets []UserReset, at time.Time) string {
	var b strings.Builder
	b.WriteString("Daily reset report\n")
	fmt.Fprintf(&b, "Previous day: %s\n", at.AddDate(0, 0, -1).Format("02/01/2006"))
	fmt.Fprintf(&b, "Reset time: %s\n\n", at.Format("15:04 - 02/01/2006"))

	totalErrors := 0
	plugLines := make([]string, 0)
	for _, plug := range prev.Plugs {
		if plug.ErrorMinutes == 0 && plug.HolidayMinutes == 0 {
			continue
		}
		totalErrors += plug.ErrorMinutes
		line := fmt.Sprintf("  - %s: %dm in error", plug.Name, plug.ErrorMinutes)
		if plug.HolidayMinutes > 0 {
			line += fmt.Sprintf(", %dm on holiday", plug.HolidayMinutes)
		}
		plugLines = append(plugLines, line)
	}
	if len(plugLines) > 0 {
		fmt.Fprintf(&b, "Plug errors (total %dm):\n%s\n", totalErrors, strings.Join(plugLines, "\n"))
	} else {
		b.WriteString("No plug errors yesterday\n")
	}

	totalUsed := 0
	usageLines := make([]string, 0)
	for _, user := range prev.Users {
		if user.Used == 0 {
			continue
		}
		totalUsed += user.Used
		usageLines = append(usageLines, fmt.Sprintf("  - @%s: consumed %dm", user.Username, user.Used))
	}
	if len(usageLines) > 0 {
		fmt.Fprintf(&b, "\nUsage (total %dm):\n%s\n", totalUsed, strings.Join(usageLines, "\n"))
	} else {
		b.WriteString("\nNo minutes consumed yesterday\n")
	}

	b.WriteString("\nReset applied:\n")
	for _, reset := range resets {
		line := fmt.Sprintf("  - @%s: %dm -> %dm", reset.Username, reset.OldRemaining, reset.NewRemaining)
		if reset.ErrorsApplied > 0 {
			line += fmt.Sprintf(" (error debt %dm applied)", reset.ErrorsApplied)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\nReady for the new day.")
	return b.String()
}

// StartupInfo is the material for the startup banner.
type StartupInfo struct {
	At              time.Time
	Broker          string
	Port            int
	PowerThreshold  float64
	IntervalMinutes int
	DefaultMinutes  int
	ActivePlugs     []string
	InactivePlugs   []string
}

// Startup renders the banner broadcast once when the service comes up.
func Startup(info StartupInfo) string {
	var b strings.Builder
	b.WriteString("plugwarden started\n\n")
	b.WriteString("Configuration:\n")
	fmt.Fprintf(&b, "  - broker: %s:%d\n", info.Broker, info.Port)
	fmt.Fprintf(&b, "  - power threshold: %.0f W\n", info.PowerThreshold)
	fmt.Fprintf(&b, "  - check interval: %d minutes\n", info.IntervalMinutes)
	fmt.Fprintf(&b, "  - default daily minutes: %d\n", info.DefaultMinutes)

	b.WriteString("\nPlugs:\n")
	if len(info.ActivePlugs) > 0 {
		fmt.Fprintf(&b, "  - active: %s\n", strings.Join(info.ActivePlugs, ", "))
	}
	if len(info.InactivePlugs) > 0 {
		fmt.Fprintf(&b, "  - inactive: %s\n", strings.Join(info.InactivePlugs, ", "))
	}
	if len(info.ActivePlugs) == 0 && len(info.InactivePlugs) == 0 {
		b.WriteString("  - none configured\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
