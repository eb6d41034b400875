package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecuteCommandCapturesOutput(t *testing.T) {
	cmd := newCommand(context.Background(), "sh", "-c", "echo out; echo err >&2")
	stdout, stderr, err := executeCommand(cmd, nil)
	if err != nil {
		t.Fatalf("executeCommand failed: %v", err)
	}
	if strings.TrimSpace(string(stdout)) != "out" {
		t.Errorf("stdout = %q", stdout)
	}
	if strings.TrimSpace(string(stderr)) != "err" {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestExecuteCommandLargeOutput(t *testing.T) {
	// Output well past the pipe buffer; a sequential read would deadlock.
	cmd := newCommand(context.Background(), "sh", "-c", "yes x | head -c 262144")
	stdout, _, err := executeCommand(cmd, nil)
	if err != nil {
		t.Fatalf("executeCommand failed: %v", err)
	}
	if len(stdout) != 262144 {
		t.Errorf("stdout length = %d, want 262144", len(stdout))
	}
}

func TestExecuteCommandFailureIncludesStderr(t *testing.T) {
	cmd := newCommand(context.Background(), "sh", "-c", "echo broken >&2; exit 1")
	_, _, err := executeCommand(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("error = %v, want stderr context", err)
	}
}

func TestExecuteCommandContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cmd := newCommand(ctx, "sleep", "10")
	start := time.Now()
	_, _, err := executeCommand(cmd, nil)
	if err == nil {
		t.Fatal("cancelled command should fail")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("command outlived its context: %v", elapsed)
	}
}

func TestProcessManagerTracking(t *testing.T) {
	pm := NewProcessManager()
	if pm.Count() != 0 {
		t.Fatalf("fresh manager count = %d", pm.Count())
	}

	cmd := newCommand(context.Background(), "sleep", "10")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pm.Track(cmd)
	if pm.Count() != 1 {
		t.Errorf("count after Track = %d, want 1", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}
	cmd.Wait()

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("count after Untrack = %d, want 0", pm.Count())
	}
}

func TestProcessManagerUntrackOnRun(t *testing.T) {
	pm := NewProcessManager()
	cmd := newCommand(context.Background(), "true")
	if _, _, err := executeCommand(cmd, pm); err != nil {
		t.Fatalf("executeCommand failed: %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("count after completed run = %d, want 0", pm.Count())
	}
}
