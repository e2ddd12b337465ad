package subprocrunner

import (
	"context"
	"testing"
	"time"
)

func TestDefaultRunner_CapturesStdout(t *testing.T) {
	r := NewDefaultRunner()
	result, err := r.Run(context.Background(), time.Second, "echo", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.StdoutLines) != 1 || result.StdoutLines[0] != "hello" {
		t.Fatalf("unexpected stdout: %#v", result.StdoutLines)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestDefaultRunner_NonZeroExitIsNotAnError(t *testing.T) {
	r := NewDefaultRunner()
	result, err := r.Run(context.Background(), time.Second, "sh", "-c", "exit 3")
	if err != nil {
		t.Fatalf("unexpected error for a tolerated non-zero exit: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestDefaultRunner_TimeoutCancelsCommand(t *testing.T) {
	r := NewDefaultRunner()
	_, err := r.Run(context.Background(), 10*time.Millisecond, "sleep", "5")
	if err == nil {
		t.Fatal("expected an error from a command exceeding its timeout")
	}
}

func TestFakeRunner_ReturnsScriptedResult(t *testing.T) {
	f := NewFakeRunner()
	f.Script("nginx -V", Result{StderrLines: []string{"nginx version: nginx/1.25.0"}})

	result, err := f.Run(context.Background(), 0, "nginx", "-V")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.StderrLines) != 1 || result.StderrLines[0] != "nginx version: nginx/1.25.0" {
		t.Fatalf("unexpected scripted result: %#v", result)
	}
}
