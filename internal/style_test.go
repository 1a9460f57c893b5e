package internal

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sensiblebit/sailor"
)

func TestWarningReporter(t *testing.T) {
	// WHY: The styled warning must keep every diagnostic field of the plain
	// report; styling is dropped entirely when output is not a terminal.
	t.Parallel()
	attempt := &sailor.ConnectionAttempt{
		Host:               "portainer.local",
		Fingerprint:        "AA:BB",
		AuthorizationError: errors.New("x509: certificate signed by unknown authority"),
	}

	var buf bytes.Buffer
	WarningReporter(&buf)(attempt)
	out := buf.String()

	if out != sailor.FormatAttempt(attempt) {
		t.Errorf("non-terminal output differs from plain report:\n%s", out)
	}
	for _, want := range []string{"portainer.local", "Fingerprint: AA:BB", "Subject: <unknown>", "unknown authority"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("escape codes written to a non-terminal")
	}
}
