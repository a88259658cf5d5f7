package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/example/plugwarden/internal/budget"
	"github.com/example/plugwarden/internal/device"
	"github.com/example/plugwarden/internal/report"
)

// Run starts the listeners, announces startup, then drives the enforcement
// tick until the context is cancelled. It returns after the listeners have
// drained and the final state has been persisted.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	for _, name := range m.sortedPlugNamesLocked() {
		if plug := m.plugs[name]; plug.Active() {
			m.startListenerLocked(plug)
		}
	}
	banner := m.startupBannerLocked()
	m.mu.Unlock()

	m.broadcast(ctx, banner)
	m.logger.InfoContext(ctx, "orchestrator started",
		slog.Duration("tick_interval", m.settings.TickInterval))

	ticker := time.NewTicker(m.settings.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

func (m *Manager) shutdown() {
	m.listenerWG.Wait()

	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.mu.Lock()
	m.persistUsersLocked(persistCtx)
	m.persistCalendarLocked(persistCtx)
	m.persistDevicesLocked(persistCtx)
	m.mu.Unlock()
	m.logger.Info("orchestrator stopped")
}

func (m *Manager) startupBannerLocked() string {
	info := report.StartupInfo{
		At:              m.startedAt,
		Broker:          m.settings.Broker,
		Port:            m.settings.BrokerPort,
		PowerThreshold:  m.settings.PowerThreshold,
		IntervalMinutes: int(m.settings.TickInterval.Minutes()),
		DefaultMinutes:  m.settings.DefaultMinutes,
	}
	for _, name := range m.sortedPlugNamesLocked() {
		if m.plugs[name].Active() {
			info.ActivePlugs = append(info.ActivePlugs, name)
		} else {
			info.InactivePlugs = append(info.InactivePlugs, name)
		}
	}
	return report.Startup(info)
}

// Tick runs one enforcement pass: holiday countdowns, the stale-telemetry
// watchdog, schedule and budget enforcement, then the periodic report and
// the daily reset when their boundaries have passed.
func (m *Manager) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	minutes := int(m.settings.TickInterval.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	for _, name := range m.sortedPlugNamesLocked() {
		m.tickPlug(ctx, m.plugs[name], now, minutes)
	}
	m.tickedOnce = true

	if now.Sub(m.lastReport) >= m.settings.ReportInterval {
		m.reportSeq++
		m.lastReport = now
		m.broadcast(ctx, report.HalfHour(m.snapshotLocked(now)))
	}

	if day := now.Format("2006-01-02"); day != m.currentDay {
		m.dailyResetLocked(ctx, now)
		m.currentDay = day
	}

	m.persistUsersLocked(ctx)
}

// tickPlug isolates one plug's pass so a panic in a single device's handling
// cannot stop the others.
func (m *Manager) tickPlug(ctx context.Context, plug *device.Plug, now time.Time, minutes int) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "tick panic",
				slog.String("plug", plug.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if !plug.Active() {
		return
	}

	if plug.HolidayMinutes() > 0 {
		plug.DecrementHoliday(minutes)
		if plug.HolidayMinutes() == 0 {
			m.broadcast(ctx, fmt.Sprintf("Holiday over for %s, enforcement resumes.", plug.Name()))
		}
		return
	}

	entered, inError := plug.CheckStale(now, m.settings.StaleThreshold, m.tickedOnce)
	if entered {
		m.broadcast(ctx, fmt.Sprintf("⚠️ No telemetry from %s, marking it in error.", plug.Name()))
	}
	if inError {
		plug.AccrueError(minutes)
		if m.settings.SharedErrorAccounting && m.settings.HeadUserID != 0 {
			if ledger, ok := m.users[m.settings.HeadUserID]; ok {
				ledger.AddErrorMinutes(minutes)
			}
		}
		return
	}

	power, ok := plug.LastPower()
	if !ok || power <= m.settings.PowerThreshold {
		return
	}

	ownerID, attached := m.plugUser[plug.Name()]
	var ledger *budget.Ledger
	if attached {
		ledger = m.users[ownerID]
	}

	if ledger == nil || !m.cal.CoversInstant(ownerID, now) {
		m.forceOff(ctx, plug, fmt.Sprintf("🚫 %s is drawing %.1f W outside a booked slot (%s). Switched off.",
			plug.Name(), power, ownerLabel(ledger)))
		return
	}

	effective := ledger.Remaining()
	if ledger.UserID() == m.settings.HeadUserID && m.settings.HeadUserID != 0 {
		effective -= ledger.ErrorMinutes()
	}
	if effective > 0 {
		effective -= ledger.Consume(minutes)
	}
	if effective <= 0 {
		m.forceOff(ctx, plug, fmt.Sprintf("⏱ %s has no minutes left, %s switched off.",
			ownerLabel(ledger), plug.Name()))
		return
	}

	if ledger.ShouldWarnLowBudget(m.settings.LowBudgetThreshold, effective) {
		m.broadcast(ctx, fmt.Sprintf("⏳ %s, only %d minute(s) left today.", ownerLabel(ledger), effective))
	}
}

// forceOff commands the relay off and announces once per off transition. The
// command itself is re-sent every tick while the draw persists; the plug's
// commanded state deduplicates only the broadcast.
func (m *Manager) forceOff(ctx context.Context, plug *device.Plug, text string) {
	announced := plug.LastCommand() == device.PowerOff
	if err := plug.SendCommand(ctx, device.PowerOff); err != nil {
		return
	}
	if !announced {
		m.broadcast(ctx, text)
	}
}

// dailyResetLocked applies the midnight policy: leftover minutes offset each
// user's accumulated error debt, the new allotment is the default minus any
// debt that leftover could not cover, and the usage and error counters start
// the day at zero.
func (m *Manager) dailyResetLocked(ctx context.Context, now time.Time) {
	prev := m.snapshotLocked(now)

	resets := make([]report.UserReset, 0, len(m.users))
	for _, ledger := range m.sortedLedgersLocked() {
		oldRemaining := ledger.Remaining()
		unresolved := ledger.ErrorMinutes() - oldRemaining
		if unresolved < 0 {
			unresolved = 0
		}
		allotment := ledger.Default() - unresolved
		if allotment < 0 {
			allotment = 0
		}
		ledger.ResetDaily(budget.ResetOptions{
			Allotment:      &allotment,
			ResetRemaining: true,
			ResetUsed:      true,
		})
		applied := ledger.ErrorMinutes()
		ledger.ClearErrorMinutes()
		resets = append(resets, report.UserReset{
			Username:      ledger.Username(),
			OldRemaining:  oldRemaining,
			NewRemaining:  ledger.Remaining(),
			ErrorsApplied: applied,
		})
	}
	for _, plug := range m.plugs {
		plug.ClearErrorMinutes()
	}

	m.broadcast(ctx, report.DailyReset(prev, resets, now))
	m.logger.InfoContext(ctx, "daily reset applied", slog.Int("users", len(resets)))
}
