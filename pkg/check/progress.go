package check

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/ryanuber/go-glob"
)

// Progress tracks one instance across the rounds of a run.
// It is safe for concurrent use; a round that timed out may still be
// finishing while the next one reads it.
type Progress struct {
	mu sync.RWMutex

	inst     *instance.Instance
	current  *Group
	previous *Group

	stateChanges   int
	stateChangedAt time.Time
	rounds         int
	doneRounds     int
	finished       bool

	data map[string]any
	now  func() time.Time
}

// ProgressOption is a functional option for configuring a Progress.
type ProgressOption func(*Progress)

// WithClock sets the time source of the stability stopwatch.
func WithClock(now func() time.Time) ProgressOption {
	return func(p *Progress) { p.now = now }
}

// NewProgress creates a Progress whose stability stopwatch starts now.
func NewProgress(inst *instance.Instance, opts ...ProgressOption) *Progress {
	p := &Progress{
		inst: inst,
		data: make(map[string]any),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stateChangedAt = p.now()
	return p
}

// Instance returns the tracked instance.
func (p *Progress) Instance() *instance.Instance {
	return p.inst
}

// Update records a finished round. A changed fingerprint increments the
// state change counter and restarts the stability stopwatch.
func (p *Progress) Update(g *Group) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.previous = p.current
	p.current = g
	p.rounds++
	if p.stateChangedLocked() {
		p.stateChanges++
		p.stateChangedAt = p.now()
	}
}

// Current returns the latest finished round, or nil.
func (p *Progress) Current() *Group {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Previous returns the round before the latest one, or nil.
func (p *Progress) Previous() *Group {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.previous
}

// StateChanged reports whether the latest round's fingerprint differs from
// the previous one. It is true while there is no previous round.
func (p *Progress) StateChanged() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateChangedLocked()
}

func (p *Progress) stateChangedLocked() bool {
	if p.current == nil || p.previous == nil {
		return true
	}
	return p.current.State() != p.previous.State()
}

// StateChanges returns how many times the fingerprint changed.
func (p *Progress) StateChanges() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateChanges
}

// StateTime returns how long the fingerprint has been unchanged.
func (p *Progress) StateTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now().Sub(p.stateChangedAt)
}

// Rounds returns the number of finished rounds.
func (p *Progress) Rounds() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rounds
}

// Data returns a value remembered for the instance by a check.
func (p *Progress) Data(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[key]
	return v, ok
}

// SetData remembers a value for the instance across rounds.
func (p *Progress) SetData(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
}

// markDone counts a done round and reports whether the quorum is reached.
func (p *Progress) markDone(quorum int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doneRounds++
	if quorum <= 1 || p.doneRounds >= quorum {
		p.finished = true
	}
	return p.finished
}

// resetDone is called for every round that was not done, including timeouts.
func (p *Progress) resetDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doneRounds = 0
}

// DoneRounds returns the number of consecutive done rounds.
func (p *Progress) DoneRounds() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doneRounds
}

// Finished reports whether the instance reached the done quorum.
func (p *Progress) Finished() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.finished
}

// Summary renders "<name>: <round summary>".
func (p *Progress) Summary() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return p.inst.Name + ": In progress"
	}
	return p.inst.Name + ": " + decapitalize(p.current.Summary())
}

// SummaryAbbreviated renders a compact summary built from first letters,
// e.g. "la: -Bs 97.50%" for "Bundles stable (97.50% (390/400))" on local author.
func (p *Progress) SummaryAbbreviated() string {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	sign := "~"
	var parts []string
	if current != nil {
		sign = "-"
		if current.Done() {
			sign = "+"
		}
		summary := current.Summary()
		switch {
		case glob.Glob("* (*)", summary):
			text, number, _ := strings.Cut(summary, " (")
			parts = append(parts, sign+firstLetters(text))
			if fields := strings.Fields(strings.TrimSuffix(number, ")")); len(fields) > 0 {
				parts = append(parts, fields[0])
			}
		case glob.Glob("* '*'", summary):
			text, sub, _ := strings.Cut(summary, " '")
			parts = append(parts, sign+firstLetters(text), shortenClass(strings.TrimSuffix(sub, "'")))
		default:
			parts = append(parts, sign+firstLetters(summary))
		}
	}

	name := firstLetters(words(p.inst.Env) + " " + words(p.inst.ID))
	if name == "" {
		name = p.inst.Name
	}
	return name + ": " + strings.Join(parts, " ")
}

// ProgressSnapshot is a point-in-time copy of Progress fields.
type ProgressSnapshot struct {
	Instance     string        `json:"instance"`
	URL          string        `json:"url"`
	Summary      string        `json:"summary"`
	Done         bool          `json:"done"`
	Finished     bool          `json:"finished"`
	Rounds       int           `json:"rounds"`
	DoneRounds   int           `json:"doneRounds"`
	StateChanges int           `json:"stateChanges"`
	StateTime    time.Duration `json:"stateTime"`
	Entries      []Entry       `json:"entries,omitempty"`
}

// Snapshot returns a point-in-time copy of the progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := ProgressSnapshot{
		Instance:     p.inst.Name,
		URL:          p.inst.URL,
		Summary:      "In progress",
		Finished:     p.finished,
		Rounds:       p.rounds,
		DoneRounds:   p.doneRounds,
		StateChanges: p.stateChanges,
		StateTime:    p.now().Sub(p.stateChangedAt),
	}
	if p.current != nil {
		snap.Summary = p.current.Summary()
		snap.Done = p.current.Done()
		snap.Entries = p.current.Entries()
	}
	return snap
}

func decapitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// words splits camel case and snake case into lower case words.
func words(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			b.WriteRune(' ')
		case unicode.IsUpper(r) && i > 0:
			b.WriteRune(' ')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func firstLetters(s string) string {
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		b.WriteRune([]rune(w)[0])
	}
	return b.String()
}

// shortenClass abbreviates package segments, e.g. "com.example.Foo" to "c.e.Foo".
func shortenClass(s string) string {
	segments := strings.Split(s, ".")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] != "" {
			segments[i] = string([]rune(segments[i])[0])
		}
	}
	return strings.Join(segments, ".")
}
