package action

import (
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/kylerisse/aemawait/pkg/check"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Reporter shows run progress. Update receives the joined per-instance
// summaries after every round.
type Reporter interface {
	check.Reporter
	Start()
	Finish()
}

// BarTemplate renders the elapsed time followed by the latest summary line.
const BarTemplate = `{{ etime . "%s" }} {{ string . "summary" }}`

// BarReporter renders progress as a single refreshing terminal line.
type BarReporter struct {
	bar *pb.ProgressBar
}

// NewBarReporter creates a BarReporter writing to w.
func NewBarReporter(w io.Writer) *BarReporter {
	bar := pb.ProgressBarTemplate(BarTemplate).New(0)
	bar.SetWriter(w)
	bar.SetRefreshRate(200 * time.Millisecond)
	bar.Set("summary", "In progress")
	return &BarReporter{bar: bar}
}

func (b *BarReporter) Start() {
	b.bar.Start()
}

func (b *BarReporter) Update(line string) {
	b.bar.Set("summary", line)
}

func (b *BarReporter) Finish() {
	b.bar.Finish()
}

// DefaultLogInterval is the minimal gap between progress lines of a LogReporter.
const DefaultLogInterval = 10 * time.Second

// LogReporter writes progress lines to a logger, skipping repeated lines and
// throttling changed ones. The latest line is always logged on Finish.
type LogReporter struct {
	logger  *logrus.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	last   string
	logged bool
}

// NewLogReporter creates a LogReporter logging at most once per interval.
func NewLogReporter(logger *logrus.Logger, interval time.Duration) *LogReporter {
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	return &LogReporter{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (l *LogReporter) Start() {}

func (l *LogReporter) Update(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if line == l.last {
		return
	}
	l.last = line
	l.logged = false
	if l.limiter.Allow() {
		l.logger.Info(line)
		l.logged = true
	}
}

func (l *LogReporter) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last != "" && !l.logged {
		l.logger.Info(l.last)
		l.logged = true
	}
}
