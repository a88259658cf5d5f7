package calendar

import "sort"

// selectionKey scopes an in-progress multi-slot selection to the requester
// working on a particular day. Selections never persist.
type selectionKey struct {
	RequesterID int64
	Day         string
}

// ToggleSelection flips the slot in the requester's working selection for
// the day and reports whether the slot is selected afterwards.
func (c *Calendar) ToggleSelection(requesterID int64, day, slot string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := selectionKey{RequesterID: requesterID, Day: day}
	current := c.selections[key]
	for i, s := range current {
		if s == slot {
			c.selections[key] = append(current[:i], current[i+1:]...)
			return false
		}
	}
	c.selections[key] = append(current, slot)
	return true
}

// SelectedSlots returns the requester's working selection for the day in
// slot order.
func (c *Calendar) SelectedSlots(requesterID int64, day string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := c.selections[selectionKey{RequesterID: requesterID, Day: day}]
	out := make([]string, len(current))
	copy(out, current)
	sort.Strings(out)
	return out
}

// ClearSelection drops the requester's working selection for the day.
func (c *Calendar) ClearSelection(requesterID int64, day string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.selections, selectionKey{RequesterID: requesterID, Day: day})
}
