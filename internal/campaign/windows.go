package campaign

import (
	"math/rand"
	"time"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
)

// minRetryLead is the minimum delay before a number may be dialed again.
const minRetryLead = 30 * time.Minute

// InWindow reports whether the civil hour of t falls inside any
// calling window. No windows configured means always open.
func InWindow(t time.Time, windows []models.CallingWindow) bool {
	if len(windows) == 0 {
		return true
	}
	h := t.Hour()
	for _, w := range windows {
		if h >= w.StartHour && h < w.EndHour {
			return true
		}
	}
	return false
}

// NextOpen returns the earliest instant at or after t that falls
// inside a calling window.
func NextOpen(t time.Time, windows []models.CallingWindow) time.Time {
	if InWindow(t, windows) {
		return t
	}

	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	best := time.Time{}

	// today, windows still ahead of us
	for _, w := range windows {
		open := dayStart.Add(time.Duration(w.StartHour) * time.Hour)
		if open.After(t) && (best.IsZero() || open.Before(best)) {
			best = open
		}
	}
	if !best.IsZero() {
		return best
	}

	// tomorrow's earliest window
	tomorrow := dayStart.AddDate(0, 0, 1)
	for _, w := range windows {
		open := tomorrow.Add(time.Duration(w.StartHour) * time.Hour)
		if best.IsZero() || open.Before(best) {
			best = open
		}
	}
	return best
}

// RetryTime picks a uniformly random instant at least minRetryLead in
// the future inside one of today's remaining calling windows, or
// inside tomorrow's first window when none remain today.
func RetryTime(now time.Time, windows []models.CallingWindow, rng *rand.Rand) time.Time {
	if len(windows) == 0 {
		windows = []models.CallingWindow{{StartHour: 0, EndHour: 24}}
	}

	earliest := now.Add(minRetryLead)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// usable spans left today, clamped to the earliest allowed instant
	type span struct{ from, to time.Time }
	var spans []span
	var total time.Duration
	for _, w := range windows {
		from := dayStart.Add(time.Duration(w.StartHour) * time.Hour)
		to := dayStart.Add(time.Duration(w.EndHour) * time.Hour)
		if from.Before(earliest) {
			from = earliest
		}
		if from.Before(to) {
			spans = append(spans, span{from, to})
			total += to.Sub(from)
		}
	}

	if total > 0 {
		offset := time.Duration(rng.Int63n(int64(total)))
		for _, sp := range spans {
			if d := sp.to.Sub(sp.from); offset < d {
				return sp.from.Add(offset)
			} else {
				offset -= d
			}
		}
	}

	// nothing left today: uniform inside tomorrow's first window
	first := windows[0]
	for _, w := range windows[1:] {
		if w.StartHour < first.StartHour {
			first = w
		}
	}
	tomorrow := dayStart.AddDate(0, 0, 1)
	from := tomorrow.Add(time.Duration(first.StartHour) * time.Hour)
	width := time.Duration(first.EndHour-first.StartHour) * time.Hour
	if width <= 0 {
		return from
	}
	return from.Add(time.Duration(rng.Int63n(int64(width))))
}
