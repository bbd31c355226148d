// Package typewriter reveals bursty text in small timed slices so a reply
// always appears to stream.
//
// A Scheduler owns no goroutines or timers. It hands out tea.Tick commands
// tagged with its id and a generation; the caller feeds the resulting TickMsg
// back through Tick from the same Update loop. Cancel and Flush bump the
// generation, so a tick already in flight is recognised as stale and ignored.
package typewriter

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	DefaultThreshold = 100
	DefaultSlice     = 10
	DefaultInterval  = 20 * time.Millisecond
)

// Options tune the reveal. Sizes are counted in runes. Zero fields take the
// defaults.
type Options struct {
	Threshold int
	Slice     int
	Interval  time.Duration
}

// DefaultOptions returns the stock reveal settings.
func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		Slice:     DefaultSlice,
		Interval:  DefaultInterval,
	}
}

// TickMsg is delivered when a reveal interval elapses.
type TickMsg struct {
	ID  uint64
	Gen uint64
}

var lastID atomic.Uint64

// Scheduler tracks the latest known text and how much of it is visible.
type Scheduler struct {
	id     uint64
	gen    uint64
	opts   Options
	target []rune
	shown  int
	armed  bool
}

// New returns an idle scheduler.
func New(opts Options) *Scheduler {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Slice <= 0 {
		opts.Slice = DefaultSlice
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Scheduler{id: lastID.Add(1), opts: opts}
}

// Advance sets the cumulative text to reveal. Small increments become visible
// at once. A large increment, or any increment while a reveal is running,
// is revealed by ticks; the returned command is non-nil only when a new tick
// had to be armed.
func (s *Scheduler) Advance(target string) (string, tea.Cmd) {
	s.target = []rune(target)
	if s.shown > len(s.target) {
		s.shown = len(s.target)
	}

	if s.armed {
		return s.Visible(), nil
	}
	if len(s.target)-s.shown < s.opts.Threshold {
		s.shown = len(s.target)
		return s.Visible(), nil
	}

	s.armed = true
	return s.Visible(), s.tick()
}

// Tick handles a TickMsg. ok is false when the tick belongs to another
// scheduler or to a cancelled generation; the state is then untouched.
func (s *Scheduler) Tick(msg TickMsg) (visible string, cmd tea.Cmd, ok bool) {
	if msg.ID != s.id || msg.Gen != s.gen || !s.armed {
		return s.Visible(), nil, false
	}

	s.shown = min(s.shown+s.opts.Slice, len(s.target))
	if s.shown < len(s.target) {
		return s.Visible(), s.tick(), true
	}
	s.armed = false
	return s.Visible(), nil, true
}

// Flush disarms the scheduler and reveals the full target.
func (s *Scheduler) Flush() string {
	s.Cancel()
	s.shown = len(s.target)
	return s.Visible()
}

// Cancel disarms the scheduler without revealing more text.
func (s *Scheduler) Cancel() {
	s.gen++
	s.armed = false
}

// Pending reports whether a tick is armed.
func (s *Scheduler) Pending() bool {
	return s.armed
}

// Visible returns the revealed prefix of the target.
func (s *Scheduler) Visible() string {
	return string(s.target[:s.shown])
}

// Target returns the latest text passed to Advance.
func (s *Scheduler) Target() string {
	return string(s.target)
}

// Behind returns how many runes of the target are still hidden.
func (s *Scheduler) Behind() int {
	return len(s.target) - s.shown
}

func (s *Scheduler) tick() tea.Cmd {
	id, gen := s.id, s.gen
	return tea.Tick(s.opts.Interval, func(time.Time) tea.Msg {
		return TickMsg{ID: id, Gen: gen}
	})
}
