package pipeline

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestSyslogListener_ExtractsMarkedRecords(t *testing.T) {
	listener := NewSyslogListener("127.0.0.1:0", "", 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := listener.EnsureStarted(ctx); err != nil {
		t.Fatal(err)
	}
	defer listener.Stop()

	addr := listener.conn.LocalAddr().(*net.UDPAddr)

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("<6>Jul 30 amplify: 127.0.0.1 - - [request] 200")); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write([]byte("some unrelated syslog noise")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var lines []string
	for time.Now().Before(deadline) {
		lines = listener.ReadLines()
		if len(lines) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(lines) != 1 {
		t.Fatalf("expected exactly one marked record extracted, got %v", lines)
	}
	if lines[0] != "127.0.0.1 - - [request] 200" {
		t.Fatalf("unexpected extracted record: %q", lines[0])
	}
}

func TestSyslogListener_ReadLinesDrainsBuffer(t *testing.T) {
	listener := NewSyslogListener("127.0.0.1:0", DefaultSyslogMarker, 2, nil)
	listener.push("amplify: a")
	listener.push("amplify: b")
	listener.push("amplify: c") // exceeds MaxLines=2, oldest dropped

	got := listener.ReadLines()
	if len(got) != 2 || got[0] != "amplify: b" || got[1] != "amplify: c" {
		t.Fatalf("expected bounded buffer to keep the last 2 entries, got %v", got)
	}

	if got := listener.ReadLines(); len(got) != 0 {
		t.Fatalf("expected ReadLines to drain the buffer, got %v", got)
	}
}

func TestSyslogListener_EnsureStartedIsIdempotent(t *testing.T) {
	listener := NewSyslogListener("127.0.0.1:0", "", 0, nil)
	ctx := context.Background()

	if err := listener.EnsureStarted(ctx); err != nil {
		t.Fatal(err)
	}
	defer listener.Stop()

	if err := listener.EnsureStarted(ctx); err != nil {
		t.Fatalf("expected second EnsureStarted call to be a no-op, got error: %v", err)
	}
}
