package livetiming

import (
	"strings"
	"testing"
)

func TestLogBuffer(t *testing.T) {
	lb := NewLogBuffer(10)

	if _, err := lb.Write([]byte("first line\n\n")); err != nil {
		t.Fatal(err)
	}

	if got := lb.String(); got != "first line\n" {
		t.Errorf("Expected blank lines to be collapsed, got: %q", got)
	}

	for i := 0; i < 100; i++ {
		if _, err := lb.Write([]byte("0123456789")); err != nil {
			t.Fatal(err)
		}
	}

	if got := lb.String(); len(got) > 20 || !strings.HasSuffix(got, "0123456789") {
		t.Errorf("Expected the buffer to keep only recent output, got: %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	if _, _, err := NewLogger("verbose"); err == nil {
		t.Error("Expected an unknown level to be rejected")
	}

	logger, logs, err := NewLogger("debug")

	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("captured lap 3")

	if !strings.Contains(logs.String(), "captured lap 3") {
		t.Errorf("Expected the log buffer to keep log output, got: %q", logs.String())
	}
}
