package check

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestStatusLog_Empty(t *testing.T) {
	var l StatusLog
	if !l.Success() {
		t.Error("empty log should be successful")
	}
	if l.Status() != StatusPassed {
		t.Errorf("expected %q, got %q", StatusPassed, l.Status())
	}
}

func TestStatusLog_WarningsDoNotFail(t *testing.T) {
	var l StatusLog
	l.Add(logrus.WarnLevel, "Slow", "")
	l.Add(logrus.InfoLevel, "Fine", "")

	if !l.Success() {
		t.Error("warnings should not fail")
	}
	if l.Status() != "Slow" {
		t.Errorf("expected first summary, got %q", l.Status())
	}
}

func TestStatusLog_ErrorFails(t *testing.T) {
	var l StatusLog
	l.Add(logrus.InfoLevel, "Checking", "")
	l.Add(logrus.ErrorLevel, "Bundles unknown", "Unknown bundle state")

	if l.Success() {
		t.Error("error entry should fail")
	}
	if l.Status() != "Checking" {
		t.Errorf("status is the first summary, got %q", l.Status())
	}
}

func TestStatusLog_DetailsDefaultToSummary(t *testing.T) {
	var l StatusLog
	l.Add(logrus.ErrorLevel, "Installer paused", "")

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Details != "Installer paused" {
		t.Errorf("expected details to default to summary, got %q", entries[0].Details)
	}
}

func TestStatusLog_EntriesCopy(t *testing.T) {
	var l StatusLog
	l.Add(logrus.InfoLevel, "a", "")
	entries := l.Entries()
	entries[0].Summary = "changed"

	if l.Entries()[0].Summary != "a" {
		t.Error("Entries should return a copy")
	}
}

func TestLog_ForwardsLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	Log(logger, []Entry{
		{Level: logrus.ErrorLevel, Summary: "s1", Details: "first"},
		{Level: logrus.DebugLevel, Summary: "s2", Details: "second"},
	})

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != logrus.ErrorLevel || entries[0].Message != "first" {
		t.Errorf("unexpected first entry %v %q", entries[0].Level, entries[0].Message)
	}
	if entries[1].Level != logrus.DebugLevel || entries[1].Message != "second" {
		t.Errorf("unexpected second entry %v %q", entries[1].Level, entries[1].Message)
	}
}
