package progress

import (
	"sync"
	"time"
)

// Throttle thresholds: an update is emitted when progress completes, moves at
// least MinPercentStep since the last emission, or MinEmitInterval elapsed.
const (
	MinPercentStep   = 1.0
	MinEmitInterval  = 250 * time.Millisecond
	SpeedHistorySize = 20
)

// Update is an emitted, throttled progress observation
type Update struct {
	Percent  float64
	SpeedBPS float64
	Speed    string
}

type taskProgress struct {
	lastEmitted float64 // -1 until the first emission
	lastEmit    time.Time
	lastPercent float64
	history     *SpeedHistory
}

// Tracker converts raw byte-progress observations into throttled updates and
// keeps per-task rolling speed windows. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	tasks map[int]*taskProgress
	now   func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		tasks: make(map[int]*taskProgress),
		now:   time.Now,
	}
}

// Observe records a raw progress tick for a task and reports whether an
// update should be emitted. Percentages derive from bytesTotal when known;
// ticks without a total are recorded for speed but never emitted.
func (t *Tracker) Observe(index int, bytesDone, bytesTotal int64, rate float64) (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp := t.task(index)
	if rate > 0 {
		tp.history.Add(rate)
	}
	if bytesTotal <= 0 {
		return Update{}, false
	}

	percent := float64(bytesDone) / float64(bytesTotal) * 100
	if percent > 100 {
		percent = 100
	}
	tp.lastPercent = percent

	now := t.now()
	shouldEmit := percent >= 100 ||
		tp.lastEmitted < 0 ||
		percent-tp.lastEmitted >= MinPercentStep ||
		now.Sub(tp.lastEmit) >= MinEmitInterval
	if !shouldEmit {
		return Update{}, false
	}

	tp.lastEmitted = percent
	tp.lastEmit = now
	return Update{Percent: percent, SpeedBPS: rate, Speed: FormatSpeed(rate)}, true
}

// LastPercent returns the most recently observed percentage for a task,
// emitted or not. Used for the cancellation acknowledgment.
func (t *Tracker) LastPercent(index int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tp, ok := t.tasks[index]; ok {
		return tp.lastPercent
	}
	return 0
}

// Reset clears the emission state for a task so a retry can restart from
// zero without being throttled away.
func (t *Tracker) Reset(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tp, ok := t.tasks[index]; ok {
		tp.lastEmitted = -1
		tp.lastEmit = time.Time{}
		tp.lastPercent = 0
	}
}

// Forget drops all state for a task once it reaches a terminal state
func (t *Tracker) Forget(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, index)
}

// AverageSpeed returns the arithmetic mean of all buffered samples across
// currently tracked tasks, or zero when no samples exist yet.
func (t *Tracker) AverageSpeed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum float64
	var n int
	for _, tp := range t.tasks {
		s, c := tp.history.Sum()
		sum += s
		n += c
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (t *Tracker) task(index int) *taskProgress {
	tp, ok := t.tasks[index]
	if !ok {
		tp = &taskProgress{lastEmitted: -1, history: NewSpeedHistory(SpeedHistorySize)}
		t.tasks[index] = tp
	}
	return tp
}

// SpeedHistory is a fixed-capacity ring buffer of byte-rate observations
type SpeedHistory struct {
	samples []float64
	next    int
	filled  int
}

// NewSpeedHistory creates a ring holding up to capacity samples
func NewSpeedHistory(capacity int) *SpeedHistory {
	if capacity <= 0 {
		capacity = SpeedHistorySize
	}
	return &SpeedHistory{samples: make([]float64, capacity)}
}

// Add records a sample, evicting the oldest once full
func (h *SpeedHistory) Add(rate float64) {
	h.samples[h.next] = rate
	h.next = (h.next + 1) % len(h.samples)
	if h.filled < len(h.samples) {
		h.filled++
	}
}

// Sum returns the buffered total and sample count
func (h *SpeedHistory) Sum() (float64, int) {
	var sum float64
	for i := 0; i < h.filled; i++ {
		sum += h.samples[i]
	}
	return sum, h.filled
}

// Average returns the arithmetic mean of buffered samples, zero when empty
func (h *SpeedHistory) Average() float64 {
	sum, n := h.Sum()
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
