package check

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kylerisse/aemawait/pkg/instance"
	"github.com/kylerisse/aemawait/pkg/instance/instancetest"
)

func TestBase_Timeout(t *testing.T) {
	def := NewBase(0)
	if got := def.Timeout(); got != instance.DefaultTimeout {
		t.Errorf("expected default timeout, got %v", got)
	}
	var zero Base
	if got := zero.Timeout(); got != instance.DefaultTimeout {
		t.Errorf("zero Base should use default timeout, got %v", got)
	}

	b := NewBase(10 * time.Second)
	if b.Timeout() != 10*time.Second {
		t.Errorf("unexpected timeout %v", b.Timeout())
	}
	if err := b.SetTimeout(-time.Second); err == nil {
		t.Error("expected error for negative timeout")
	}
	if err := b.SetTimeout(2 * time.Second); err != nil || b.Timeout() != 2*time.Second {
		t.Errorf("SetTimeout failed: %v", err)
	}
}

func TestBase_ClientTunedForPolling(t *testing.T) {
	fake := &instancetest.Client{}
	b := NewBase(3 * time.Second)
	c := &funcCheck{name: "base", fn: func(_ context.Context, r *Round) error {
		_, err := b.Client(r)
		return err
	}}

	g := NewGroup(testInstance("a"), []Check{c}, WithClientFactory(fake.Factory()))
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Options) != 1 || len(fake.Options[0]) != 2 {
		t.Fatalf("expected timeout and retries options, got %v", fake.Options)
	}

	hc, err := instance.NewHTTPClient(testInstance("a"), fake.Options[0]...)
	if err != nil {
		t.Fatalf("options should apply: %v", err)
	}
	if hc.Timeout() != 3*time.Second || hc.Retries() != 0 {
		t.Errorf("unexpected tuning %v/%d", hc.Timeout(), hc.Retries())
	}
}

func TestLogValues(t *testing.T) {
	few := []string{"a", "b"}
	if got := LogValues(few); got != "a\nb" {
		t.Errorf("unexpected %q", got)
	}

	many := make([]int, 13)
	for i := range many {
		many[i] = i
	}
	lines := strings.Split(LogValues(many), "\n")
	if len(lines) != LogValuesCount+1 {
		t.Fatalf("expected %d lines, got %d", LogValuesCount+1, len(lines))
	}
	if lines[LogValuesCount] != "... and other (3)" {
		t.Errorf("unexpected last line %q", lines[LogValuesCount])
	}

	if got := LogValues([]int{}); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		value, total int
		want         string
	}{
		{390, 400, "97.50% (390/400)"},
		{0, 10, "0.00% (0/10)"},
		{5, 0, "0.00% (5/0)"},
		{1, 3, "33.33% (1/3)"},
	}
	for _, tt := range tests {
		if got := PercentExplained(tt.value, tt.total); got != tt.want {
			t.Errorf("PercentExplained(%d, %d) = %q, want %q", tt.value, tt.total, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(1500 * time.Millisecond); got != "2s" {
		t.Errorf("unexpected %q", got)
	}
	if got := Duration(250 * time.Microsecond); got != "0s" {
		t.Errorf("unexpected %q", got)
	}
	if got := Duration(250 * time.Millisecond); got != "250ms" {
		t.Errorf("unexpected %q", got)
	}
	if got := Duration(3*time.Minute + 20*time.Second); got != "3m20s" {
		t.Errorf("unexpected %q", got)
	}
}
