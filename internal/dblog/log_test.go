package dblog

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, location string) *Logger {
	return &Logger{location: location, std: log.New(buf, "", 0)}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{Info: "INFO", Warn: "WARN", Error: "ERROR"}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestLoggerFormatsLevelAndLocation(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, "merge")

	l.Infof("range %d merged", 3)
	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "[merge]") || !strings.Contains(out, "range 3 merged") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoggerWarnAndError(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, "table:grades")

	l.Warnf("retrying")
	l.Errorf("disk full")
	out := buf.String()
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "[ERROR]") {
		t.Fatalf("expected both WARN and ERROR lines, got %q", out)
	}
}

func TestLogtIncludesTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, "txn")

	l.Logt(Info, "committed")
	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "[txn]") || !strings.Contains(out, "committed") {
		t.Fatalf("unexpected output: %q", out)
	}
	// Format horodaté RFC3339Nano : contient au moins un 'T' séparant date et heure.
	if !strings.Contains(out, "T") {
		t.Fatalf("expected RFC3339Nano timestamp in output, got %q", out)
	}
}
