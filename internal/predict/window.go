package predict

import (
	"time"

	"github.com/utakatalp/league-forecaster/internal/league"
)

// window is a FIFO of fed matches ordered by date. Old matches are evicted
// lazily, right before a read that depends on freshness.
type window struct {
	matches []league.Match
	head    int
}

func (w *window) push(m league.Match) {
	w.matches = append(w.matches, m)
}

func (w *window) len() int {
	return len(w.matches) - w.head
}

// items returns the retained matches, oldest first. The slice is only valid
// until the next push or evict.
func (w *window) items() []league.Match {
	return w.matches[w.head:]
}

// evict drops matches more than retentionDays older than target, calling
// dropped for each of them.
func (w *window) evict(target time.Time, retentionDays int, dropped func(league.Match)) {
	for w.head < len(w.matches) && league.DaysBetween(w.matches[w.head].Date, target) > retentionDays {
		dropped(w.matches[w.head])
		w.matches[w.head] = league.Match{}
		w.head++
	}
	if w.head > 0 && w.head >= len(w.matches)/2 {
		w.matches = append(w.matches[:0:0], w.matches[w.head:]...)
		w.head = 0
	}
}
