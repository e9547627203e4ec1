// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSlogBridgeWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerWith(NewTestLogger(&buf))

	logger.Info("service started", "service", "pipeline", "attempt", int64(3))

	out := buf.String()
	for _, want := range []string{
		`"message":"service started"`,
		`"service":"pipeline"`,
		`"attempt":3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %s: %s", want, out)
		}
	}
}

func TestSlogBridgeGroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerWith(NewTestLogger(&buf)).WithGroup("supervisor")

	logger.Warn("restarting", "backoff", 5*time.Second)

	out := buf.String()
	if !strings.Contains(out, `"supervisor.backoff":5000`) {
		t.Fatalf("grouped key missing: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("level missing: %s", out)
	}
}

func TestSlogBridgeWithAttrsCarryOver(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerWith(NewTestLogger(&buf)).With("component", "tree")

	logger.Error("service failed")

	out := buf.String()
	if !strings.Contains(out, `"component":"tree"`) {
		t.Fatalf("bound attr missing: %s", out)
	}
}
