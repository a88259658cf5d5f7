// Package orchestrator ties the calendar, the budget ledgers and the plug
// registry together and drives the periodic enforcement tick.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/plugwarden/internal/backoff"
	"github.com/example/plugwarden/internal/budget"
	"github.com/example/plugwarden/internal/calendar"
	"github.com/example/plugwarden/internal/device"
	"github.com/example/plugwarden/internal/logging"
	"github.com/example/plugwarden/internal/persistence"
	"github.com/example/plugwarden/internal/report"
)

var (
	// ErrUnknownPlug is returned when an operation names a plug that is not
	// registered.
	ErrUnknownPlug = errors.New("orchestrator: unknown plug")
	// ErrUnknownUser is returned when an operation names a user that is not
	// registered.
	ErrUnknownUser = errors.New("orchestrator: unknown user")
	// ErrPlugAttached is returned when attaching a plug that already belongs
	// to another user.
	ErrPlugAttached = errors.New("orchestrator: plug attached to another user")
	// ErrPlugExists is returned when registering a plug name twice.
	ErrPlugExists = errors.New("orchestrator: plug already registered")
)

// Notifier delivers messages to the operators' chat and to the
// administrators directly.
type Notifier interface {
	Broadcast(ctx context.Context, text string) error
	NotifyAdmin(ctx context.Context, text string) error
}

// Settings carries the tunable enforcement parameters.
type Settings struct {
	PowerThreshold     float64
	TickInterval       time.Duration
	DefaultMinutes     int
	StaleThreshold     time.Duration
	LowBudgetThreshold int
	ReportInterval     time.Duration
	// HeadUserID, when non-zero, names the user whose effective budget is
	// remaining minus accrued error minutes. At startup the head user is
	// attached to the first registered plug when both sides are free.
	HeadUserID int64
	// SharedErrorAccounting charges every plug's connectivity-error minutes
	// to the head user's ledger as well as the plug's own counter, no matter
	// which plug failed or who it is attached to.
	SharedErrorAccounting bool
	// Broker and BrokerPort identify the MQTT endpoint for the startup
	// banner.
	Broker     string
	BrokerPort int
	// TelemetryPeriod is the reporting interval requested from devices that
	// support it. Zero keeps the device default.
	TelemetryPeriod time.Duration
}

func (s Settings) normalized() Settings {
	if s.PowerThreshold <= 0 {
		s.PowerThreshold = 30
	}
	if s.TickInterval <= 0 {
		s.TickInterval = 2 * time.Minute
	}
	if s.DefaultMinutes <= 0 {
		s.DefaultMinutes = 125
	}
	if s.StaleThreshold <= 0 {
		s.StaleThreshold = device.DefaultStaleThreshold
	}
	if s.LowBudgetThreshold <= 0 {
		s.LowBudgetThreshold = 6
	}
	if s.ReportInterval <= 0 {
		s.ReportInterval = 30 * time.Minute
	}
	return s
}

// Dependencies carries the ports the manager drives.
type Dependencies struct {
	Users    persistence.UserStore
	Bookings persistence.CalendarStore
	Devices  persistence.DeviceStore
	Channel  device.Channel
	Notifier Notifier
	Logger   *slog.Logger
}

// Manager owns the full runtime state. All mutating entry points and the
// tick serialize on a single mutex; telemetry flows in through the per-plug
// listeners which only touch the plugs' own locks.
type Manager struct {
	mu sync.Mutex

	settings Settings
	deps     Dependencies
	logger   *slog.Logger
	now      func() time.Time
	policy   backoff.Policy

	// notifier has its own lock: listener goroutines broadcast escalations
	// while the manager mutex is held elsewhere.
	notifierMu sync.RWMutex
	notifier   Notifier

	cal   *calendar.Calendar
	users map[int64]*budget.Ledger
	plugs map[string]*device.Plug

	userPlug map[int64]string
	plugUser map[string]int64

	listeners  map[string]context.CancelFunc
	listenerWG sync.WaitGroup
	runCtx     context.Context

	startedAt  time.Time
	lastReport time.Time
	reportSeq  int
	currentDay string
	tickedOnce bool
}

// Option configures the manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBackoffPolicy overrides the listener reconnect policy.
func WithBackoffPolicy(policy backoff.Policy) Option {
	return func(m *Manager) {
		m.policy = policy
	}
}

// New assembles a manager. Call LoadState before Run.
func New(settings Settings, deps Dependencies, opts ...Option) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := &Manager{
		settings:  settings.normalized(),
		deps:      deps,
		logger:    deps.Logger,
		now:       time.Now,
		policy:    backoff.DefaultPolicy(),
		users:     make(map[int64]*budget.Ledger),
		plugs:     make(map[string]*device.Plug),
		userPlug:  make(map[int64]string),
		plugUser:  make(map[string]int64),
		listeners: make(map[string]context.CancelFunc),
	}
	m.notifier = deps.Notifier
	for _, opt := range opts {
		opt(m)
	}
	m.cal = calendar.New(calendar.WithNow(m.now))
	m.startedAt = m.now()
	m.lastReport = m.startedAt
	m.currentDay = m.startedAt.Format("2006-01-02")
	return m
}

// SetNotifier installs the broadcast sink. The front-end needs the manager
// to exist before it can be built, so the notifier arrives late.
func (m *Manager) SetNotifier(notifier Notifier) {
	m.notifierMu.Lock()
	m.notifier = notifier
	m.notifierMu.Unlock()
}

// LoadState restores users, bookings and devices from the stores. Missing
// documents leave the corresponding state empty; corrupt documents are logged
// and skipped so the service still comes up.
func (m *Manager) LoadState(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, err := m.deps.Users.LoadUsers(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "discarding user document", slog.Any("error", err))
	}
	for key, record := range users {
		if record.UserID == 0 {
			if id, parseErr := strconv.ParseInt(key, 10, 64); parseErr == nil {
				record.UserID = id
			} else {
				m.logger.WarnContext(ctx, "skipping user record without id", slog.String("key", key))
				continue
			}
		}
		ledger := budget.NewLedger(record.UserID, record.Username, record.DefaultMinutes)
		ledger.ResetDaily(budget.ResetOptions{Allotment: intPtr(record.RemainingMinutes), ResetRemaining: true})
		ledger.AddErrorMinutes(record.ErrorMinutes)
		m.restoreUsed(ledger, record.UsedMinutes)
		m.users[record.UserID] = ledger
		if record.AttachedPlug != "" {
			m.userPlug[record.UserID] = record.AttachedPlug
			m.plugUser[record.AttachedPlug] = record.UserID
		}
	}

	bookings, err := m.deps.Bookings.LoadBookings(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "discarding calendar document", slog.Any("error", err))
	} else {
		m.cal.Restore(calendarFromDocument(bookings))
	}

	devices, err := m.deps.Devices.LoadDevices(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "discarding device document", slog.Any("error", err))
	}
	for _, record := range devices.Devices {
		if record.Name == "" {
			continue
		}
		m.registerChannelRoute(record.Name, record.TopicPrefix)
		m.plugs[record.Name] = device.NewPlug(device.Config{
			Name:        record.Name,
			TopicPrefix: record.TopicPrefix,
			Active:      record.Active,
		}, m.deps.Channel, m.logger)
	}

	// Drop attachments that reference plugs no longer present.
	for userID, plugName := range m.userPlug {
		if _, ok := m.plugs[plugName]; !ok {
			delete(m.userPlug, userID)
			delete(m.plugUser, plugName)
		}
	}

	m.attachHeadUserLocked(ctx)
	return nil
}

// attachHeadUserLocked binds the configured head user to the first plug when
// neither side already has a binding.
func (m *Manager) attachHeadUserLocked(ctx context.Context) {
	headID := m.settings.HeadUserID
	if headID == 0 {
		return
	}
	if _, ok := m.users[headID]; !ok {
		m.users[headID] = budget.NewLedger(headID, "head", m.settings.DefaultMinutes)
	}
	if _, attached := m.userPlug[headID]; attached {
		return
	}
	for _, name := range m.sortedPlugNamesLocked() {
		if _, taken := m.plugUser[name]; taken {
			continue
		}
		m.userPlug[headID] = name
		m.plugUser[name] = headID
		m.persistUsersLocked(ctx)
		m.logger.InfoContext(ctx, "head user attached",
			slog.Int64("user_id", headID), slog.String("plug", name))
		return
	}
}

func (m *Manager) restoreUsed(ledger *budget.Ledger, used int) {
	if used <= 0 {
		return
	}
	// Replay yesterday's usage so Used reflects the stored counter without
	// disturbing Remaining.
	ledger.AddMinutes(used)
	ledger.Consume(used)
}

func intPtr(v int) *int { return &v }

func calendarFromDocument(doc persistence.CalendarDocument) map[int64]map[string]map[string]calendar.BookingRecord {
	out := make(map[int64]map[string]map[string]calendar.BookingRecord, len(doc))
	for key, days := range doc {
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		byDay := make(map[string]map[string]calendar.BookingRecord, len(days))
		for day, slots := range days {
			bySlot := make(map[string]calendar.BookingRecord, len(slots))
			for slot, record := range slots {
				bySlot[slot] = calendar.BookingRecord{
					ID:       record.ID,
					UserID:   record.UserID,
					Username: record.Username,
					BookedAt: record.BookedAt,
				}
			}
			byDay[day] = bySlot
		}
		out[userID] = byDay
	}
	return out
}

func calendarToDocument(all map[int64]map[string]map[string]calendar.BookingRecord) persistence.CalendarDocument {
	doc := make(persistence.CalendarDocument, len(all))
	for userID, days := range all {
		byDay := make(map[string]map[string]persistence.BookingRecord, len(days))
		for day, slots := range days {
			bySlot := make(map[string]persistence.BookingRecord, len(slots))
			for slot, record := range slots {
				bySlot[slot] = persistence.BookingRecord{
					ID:       record.ID,
					UserID:   record.UserID,
					Username: record.Username,
					BookedAt: record.BookedAt,
				}
			}
			byDay[day] = bySlot
		}
		doc[strconv.FormatInt(userID, 10)] = byDay
	}
	return doc
}

// EnsureUser registers the user on first contact and refreshes the stored
// username on subsequent calls.
func (m *Manager) EnsureUser(ctx context.Context, userID int64, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.users[userID]
	if !ok {
		m.users[userID] = budget.NewLedger(userID, username, m.settings.DefaultMinutes)
		m.persistUsersLocked(ctx)
		m.log(ctx).InfoContext(ctx, "registered user",
			slog.Int64("user_id", userID), slog.String("username", username))
		return
	}
	if username != "" && ledger.Username() != username {
		ledger.SetUsername(username)
		m.persistUsersLocked(ctx)
	}
}

// RegisterPlug adds a plug to the registry and starts its listener when the
// manager is running.
func (m *Manager) RegisterPlug(ctx context.Context, name, topicPrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugs[name]; ok {
		return ErrPlugExists
	}
	m.registerChannelRoute(name, topicPrefix)
	plug := device.NewPlug(device.Config{Name: name, TopicPrefix: topicPrefix, Active: true}, m.deps.Channel, m.logger)
	m.plugs[name] = plug
	if m.runCtx != nil {
		m.startListenerLocked(plug)
	}
	m.persistDevicesLocked(ctx)
	return nil
}

// Attach binds a plug to a user. A user switching plugs is detached from the
// old one first; a plug already held by someone else is refused.
func (m *Manager) Attach(ctx context.Context, userID int64, plugName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrUnknownUser
	}
	if _, ok := m.plugs[plugName]; !ok {
		return ErrUnknownPlug
	}
	if owner, ok := m.plugUser[plugName]; ok && owner != userID {
		return ErrPlugAttached
	}
	if previous, ok := m.userPlug[userID]; ok && previous != plugName {
		delete(m.plugUser, previous)
	}
	m.userPlug[userID] = plugName
	m.plugUser[plugName] = userID
	m.persistUsersLocked(ctx)
	return nil
}

// Detach removes the user's plug binding.
func (m *Manager) Detach(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plugName, ok := m.userPlug[userID]
	if !ok {
		return ErrUnknownUser
	}
	delete(m.userPlug, userID)
	delete(m.plugUser, plugName)
	m.persistUsersLocked(ctx)
	return nil
}

// AddMinutes credits (or debits, with a negative delta) a user's remaining
// budget.
func (m *Manager) AddMinutes(ctx context.Context, userID int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	ledger.AddMinutes(delta)
	m.persistUsersLocked(ctx)
	return nil
}

// SetDefaultMinutes changes a user's daily allotment going forward.
func (m *Manager) SetDefaultMinutes(ctx context.Context, userID int64, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	ledger.SetDefault(minutes)
	m.persistUsersLocked(ctx)
	return nil
}

// AddHolidayMinutes extends (or with a negative delta shortens) a plug's
// holiday countdown and returns the new total.
func (m *Manager) AddHolidayMinutes(ctx context.Context, plugName string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plug, ok := m.plugs[plugName]
	if !ok {
		return 0, ErrUnknownPlug
	}
	total := plug.AddHolidayMinutes(delta)
	m.log(ctx).InfoContext(ctx, "holiday updated",
		slog.String("plug", plugName), slog.Int("delta", delta), slog.Int("total", total))
	return total, nil
}

// CommandPlug sends a raw relay command, bypassing enforcement. The next
// tick re-evaluates the plug against schedule and budget as usual.
func (m *Manager) CommandPlug(ctx context.Context, plugName string, on bool) error {
	m.mu.Lock()
	plug, ok := m.plugs[plugName]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownPlug
	}
	state := device.PowerOff
	if on {
		state = device.PowerOn
	}
	return plug.SendCommand(ctx, state)
}

// SetPlugActive toggles a plug in or out of enforcement and manages its
// listener accordingly.
func (m *Manager) SetPlugActive(ctx context.Context, plugName string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plug, ok := m.plugs[plugName]
	if !ok {
		return ErrUnknownPlug
	}
	if plug.Active() == active {
		return nil
	}
	plug.SetActive(active)
	if active {
		if m.runCtx != nil {
			m.startListenerLocked(plug)
		}
	} else {
		m.stopListenerLocked(plugName)
	}
	m.persistDevicesLocked(ctx)
	return nil
}

// BookSlot books a half-hour slot for the user and persists the calendar.
func (m *Manager) BookSlot(ctx context.Context, userID int64, day, slot string) (calendar.BookingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.users[userID]
	if !ok {
		return calendar.BookingRecord{}, ErrUnknownUser
	}
	record, err := m.cal.BookSlot(userID, day, slot, ledger.Username())
	if err != nil {
		return calendar.BookingRecord{}, err
	}
	m.persistCalendarLocked(ctx)
	return record, nil
}

// CancelSlot cancels a booking and persists the calendar. It reports whether
// anything was removed.
func (m *Manager) CancelSlot(ctx context.Context, userID int64, day, slot string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.cal.CancelSlot(userID, day, slot)
	if removed {
		m.persistCalendarLocked(ctx)
	}
	return removed
}

// Calendar exposes the booking calendar for read-side front-end use.
func (m *Manager) Calendar() *calendar.Calendar {
	return m.cal
}

// UserStatus reports a single user's counters, or false when unknown.
func (m *Manager) UserStatus(userID int64) (report.UserStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.users[userID]
	if !ok {
		return report.UserStatus{}, false
	}
	return m.userStatusLocked(ledger), true
}

// Snapshot captures the full system state for reports.
func (m *Manager) Snapshot() report.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(m.now())
}

func (m *Manager) userStatusLocked(ledger *budget.Ledger) report.UserStatus {
	return report.UserStatus{
		UserID:       ledger.UserID(),
		Username:     ledger.Username(),
		Default:      ledger.Default(),
		Remaining:    ledger.Remaining(),
		Used:         ledger.Used(),
		ErrorMinutes: ledger.ErrorMinutes(),
		AttachedPlug: m.userPlug[ledger.UserID()],
	}
}

func (m *Manager) snapshotLocked(now time.Time) report.Snapshot {
	snapshot := report.Snapshot{
		At:       now,
		Uptime:   now.Sub(m.startedAt),
		Sequence: m.reportSeq,
	}
	for _, name := range m.sortedPlugNamesLocked() {
		plug := m.plugs[name]
		status := report.PlugStatus{
			Name:           name,
			Active:         plug.Active(),
			InError:        plug.InError(),
			ErrorMinutes:   plug.ErrorMinutes(),
			HolidayMinutes: plug.HolidayMinutes(),
			LastSeen:       plug.LastSeen(),
		}
		if power, ok := plug.LastPower(); ok {
			status.Power = &power
		}
		if ownerID, ok := m.plugUser[name]; ok {
			if ledger, found := m.users[ownerID]; found {
				status.Owner = "@" + ledger.Username()
			}
		}
		snapshot.Plugs = append(snapshot.Plugs, status)
	}
	for _, ledger := range m.sortedLedgersLocked() {
		snapshot.Users = append(snapshot.Users, m.userStatusLocked(ledger))
	}
	return snapshot
}

func (m *Manager) sortedPlugNamesLocked() []string {
	names := make([]string, 0, len(m.plugs))
	for name := range m.plugs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) sortedLedgersLocked() []*budget.Ledger {
	ledgers := make([]*budget.Ledger, 0, len(m.users))
	for _, ledger := range m.users {
		ledgers = append(ledgers, ledger)
	}
	sort.Slice(ledgers, func(i, j int) bool {
		return ledgers[i].Username() < ledgers[j].Username()
	})
	return ledgers
}

// Persistence failures are logged rather than propagated so a full disk or a
// bad mount does not take enforcement down with it.

func (m *Manager) persistUsersLocked(ctx context.Context) {
	doc := make(persistence.UsersDocument, len(m.users))
	for id, ledger := range m.users {
		doc[strconv.FormatInt(id, 10)] = persistence.UserRecord{
			UserID:           id,
			Username:         ledger.Username(),
			DefaultMinutes:   ledger.Default(),
			RemainingMinutes: ledger.Remaining(),
			UsedMinutes:      ledger.Used(),
			ErrorMinutes:     ledger.ErrorMinutes(),
			AttachedPlug:     m.userPlug[id],
		}
	}
	if err := m.deps.Users.SaveUsers(ctx, doc); err != nil {
		m.logger.ErrorContext(ctx, "persisting users failed", slog.Any("error", err))
	}
}

func (m *Manager) persistCalendarLocked(ctx context.Context) {
	if err := m.deps.Bookings.SaveBookings(ctx, calendarToDocument(m.cal.All())); err != nil {
		m.logger.ErrorContext(ctx, "persisting calendar failed", slog.Any("error", err))
	}
}

func (m *Manager) persistDevicesLocked(ctx context.Context) {
	doc := persistence.DevicesDocument{}
	for _, name := range m.sortedPlugNamesLocked() {
		plug := m.plugs[name]
		doc.Devices = append(doc.Devices, persistence.DeviceRecord{
			Name:        name,
			TopicPrefix: plug.TopicPrefix(),
			Active:      plug.Active(),
		})
	}
	if err := m.deps.Devices.SaveDevices(ctx, doc); err != nil {
		m.logger.ErrorContext(ctx, "persisting devices failed", slog.Any("error", err))
	}
}

func (m *Manager) broadcast(ctx context.Context, text string) {
	m.notifierMu.RLock()
	notifier := m.notifier
	m.notifierMu.RUnlock()
	if notifier == nil {
		return
	}
	if err := notifier.Broadcast(ctx, text); err != nil {
		m.logger.ErrorContext(ctx, "broadcast failed", slog.Any("error", err))
	}
}

func (m *Manager) notifyAdmin(ctx context.Context, text string) {
	m.notifierMu.RLock()
	notifier := m.notifier
	m.notifierMu.RUnlock()
	if notifier == nil {
		return
	}
	if err := notifier.NotifyAdmin(ctx, text); err != nil {
		m.logger.ErrorContext(ctx, "admin notification failed", slog.Any("error", err))
	}
}

// log prefers a context-carried logger (the front-end attaches one per
// update) over the manager's own.
func (m *Manager) log(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return m.logger
}

func (m *Manager) registerChannelRoute(name, topicPrefix string) {
	if registrar, ok := m.deps.Channel.(device.Registrar); ok && topicPrefix != "" {
		registrar.RegisterDevice(name, topicPrefix)
	}
}

func (m *Manager) startListenerLocked(plug *device.Plug) {
	if _, running := m.listeners[plug.Name()]; running {
		return
	}
	ctx, cancel := context.WithCancel(m.runCtx)
	m.listeners[plug.Name()] = cancel
	opts := []device.ListenerOption{device.WithListenerClock(m.now)}
	if m.settings.TelemetryPeriod > 0 {
		opts = append(opts, device.WithTelemetryPeriod(m.settings.TelemetryPeriod))
	}
	listener := device.NewListener(plug, m.deps.Channel, m.policy, func(ctx context.Context, text string) {
		m.notifyAdmin(ctx, text)
	}, m.logger, opts...)
	m.listenerWG.Add(1)
	go func() {
		defer m.listenerWG.Done()
		listener.Run(ctx)
	}()
}

func (m *Manager) stopListenerLocked(plugName string) {
	if cancel, ok := m.listeners[plugName]; ok {
		cancel()
		delete(m.listeners, plugName)
	}
}

func ownerLabel(ledger *budget.Ledger) string {
	if ledger == nil {
		return "unknown user"
	}
	return fmt.Sprintf("@%s", ledger.Username())
}
