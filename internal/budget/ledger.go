// Package budget implements the per-user daily minute ledger.
package budget

// Ledger tracks one user's daily minute budget. It holds no lock of its
// own: the orchestrator serializes every mutation behind its manager mutex,
// matching the single-writer discipline of the enforcement tick.
type Ledger struct {
	userID    int64
	username  string
	defaults  int
	remaining int
	used      int
	errorMin  int
	lowWarned bool
}

// NewLedger returns a ledger seeded with the daily default.
func NewLedger(userID int64, username string, defaultMinutes int) *Ledger {
	if defaultMinutes < 0 {
		defaultMinutes = 0
	}
	return &Ledger{
		userID:    userID,
		username:  username,
		defaults:  defaultMinutes,
		remaining: defaultMinutes,
	}
}

// UserID returns the opaque numeric identity of the ledger's owner.
func (l *Ledger) UserID() int64 { return l.userID }

// Username returns the display name of the ledger's owner.
func (l *Ledger) Username() string { return l.username }

// SetUsername updates the display name, kept fresh from the chat layer.
func (l *Ledger) SetUsername(name string) {
	if name != "" {
		l.username = name
	}
}

// Default returns the configured daily allotment.
func (l *Ledger) Default() int { return l.defaults }

// Remaining returns the minutes left today.
func (l *Ledger) Remaining() int { return l.remaining }

// Used returns the minutes consumed since the last daily reset.
func (l *Ledger) Used() int { return l.used }

// ErrorMinutes returns the accumulated connectivity-failure minutes
// attributed to this user.
func (l *Ledger) ErrorMinutes() int { return l.errorMin }

// Consume removes up to minutes from the remaining budget, floored at zero,
// and returns the amount actually removed. Used minutes grow by the same
// actual amount, which handles the final partial tick.
func (l *Ledger) Consume(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	consumed := minutes
	if consumed > l.remaining {
		consumed = l.remaining
	}
	l.remaining -= consumed
	l.used += consumed
	return consumed
}

// AddMinutes adjusts the remaining budget by delta. Negative deltas are
// allowed for administrative claw-back; remaining never goes below zero.
// A top-up above the warning band re-arms the low-budget warning.
func (l *Ledger) AddMinutes(delta int) {
	l.remaining += delta
	if l.remaining < 0 {
		l.remaining = 0
	}
}

// SetDefault updates the configured daily allotment without touching the
// current-day counters.
func (l *Ledger) SetDefault(minutes int) {
	if minutes < 0 {
		minutes = 0
	}
	l.defaults = minutes
}

// AddErrorMinutes accrues connectivity-failure time onto this user.
func (l *Ledger) AddErrorMinutes(minutes int) {
	if minutes > 0 {
		l.errorMin += minutes
	}
}

// ClearErrorMinutes zeroes the accumulated error debt, called once the
// nightly reset has applied it against the new day's allotment.
func (l *Ledger) ClearErrorMinutes() {
	l.errorMin = 0
}

// ResetOptions selects which counters a daily reset touches. The toggles
// are independent so policy code can reset usage while carrying error debt
// forward.
type ResetOptions struct {
	// NewDefault, when set, replaces the configured daily allotment.
	NewDefault *int
	// Allotment, when set, seeds the remaining budget instead of the
	// default. The nightly reset uses it to start the day with the default
	// minus unresolved error debt while leaving the configured default
	// untouched.
	Allotment      *int
	ResetRemaining bool
	ResetUsed      bool
	ResetError     bool
}

// ResetDaily applies the daily boundary policy to the ledger.
func (l *Ledger) ResetDaily(opts ResetOptions) {
	if opts.NewDefault != nil {
		l.SetDefault(*opts.NewDefault)
	}
	if opts.ResetRemaining {
		seed := l.defaults
		if opts.Allotment != nil {
			seed = *opts.Allotment
		}
		if seed < 0 {
			seed = 0
		}
		l.remaining = seed
		l.lowWarned = false
	}
	if opts.ResetUsed {
		l.used = 0
	}
	if opts.ResetError {
		l.errorMin = 0
	}
}

// ShouldWarnLowBudget reports whether a low-budget warning is due for the
// given effective remaining minutes (callers net out error debt for
// privileged accounts before asking). The warning fires once per crossing:
// it re-arms only after the effective budget climbs back above the
// threshold or a daily reset occurs.
func (l *Ledger) ShouldWarnLowBudget(threshold, effectiveRemaining int) bool {
	if effectiveRemaining > threshold {
		l.lowWarned = false
		return false
	}
	if effectiveRemaining <= 0 || l.lowWarned {
		return false
	}
	l.lowWarned = true
	return true
}
