package check

import (
	"fmt"
	"strings"
	"time"

	"github.com/kylerisse/aemawait/pkg/instance"
)

// LogValuesCount is the number of values listed in status details.
const LogValuesCount = 10

// Base is the scaffolding shared by checks that query the instance.
// Embed it and call Client to obtain a client tuned for polling: a short
// timeout and no retries, since retrying happens at the round level.
type Base struct {
	timeout time.Duration
}

// NewBase creates scaffolding with the given client timeout.
// A non-positive timeout selects instance.DefaultTimeout.
func NewBase(timeout time.Duration) Base {
	if timeout <= 0 {
		timeout = instance.DefaultTimeout
	}
	return Base{timeout: timeout}
}

// Timeout returns the client timeout.
func (b *Base) Timeout() time.Duration {
	if b.timeout <= 0 {
		return instance.DefaultTimeout
	}
	return b.timeout
}

// SetTimeout changes the client timeout.
func (b *Base) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", d)
	}
	b.timeout = d
	return nil
}

// Client creates a client for the round's instance.
func (b *Base) Client(r *Round) (instance.Client, error) {
	return r.Client(instance.WithTimeout(b.Timeout()), instance.WithRetries(0))
}

// Unknown reports a failed remote-state query. Fatal errors are returned to
// abort the run; any other error is logged on the round and nil is returned.
func Unknown(r *Round, err error, summary, details string) error {
	if instance.IsFatal(err) {
		return err
	}
	r.Error(summary, fmt.Sprintf("%s: %v", details, err))
	return nil
}

// LogValues lists up to LogValuesCount values one per line.
func LogValues[T any](values []T) string {
	lines := make([]string, 0, LogValuesCount+1)
	for i, v := range values {
		if i == LogValuesCount {
			lines = append(lines, fmt.Sprintf("... and other (%d)", len(values)-LogValuesCount))
			break
		}
		lines = append(lines, fmt.Sprint(v))
	}
	return strings.Join(lines, "\n")
}

// Percent formats value/total as a percentage, e.g. "97.50%".
func Percent(value, total int) string {
	if total <= 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(value)*100/float64(total))
}

// PercentExplained formats value/total with the raw counts, e.g. "97.50% (390/400)".
func PercentExplained(value, total int) string {
	return fmt.Sprintf("%s (%d/%d)", Percent(value, total), value, total)
}

// Duration formats a duration rounded to seconds, or milliseconds below one second.
func Duration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
