package pipeline

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/agenterrors"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
)

// DefaultSyslogMarker is the literal substring nginx's syslog output is
// split on to recover the original log record. NewSyslogListener uses it
// when given an empty marker; no configuration key sets it.
const DefaultSyslogMarker = "amplify: "

// DefaultSyslogBacklog is the maximum number of records buffered between
// ReadLines calls before the oldest are dropped.
const DefaultSyslogBacklog = 10000

// maxBindAttempts caps how many times EnsureStarted retries an
// address-already-in-use failure before giving up silently, mirroring
// SyslogTail.__iter__'s three-strike retry.
const maxBindAttempts = 3

// SyslogListener is a UDP listener that extracts nginx log records from
// syslog packets and buffers them in a bounded, drain-on-read cache.
//
// Grounded on SyslogServer/SyslogListener/SyslogTail in pipelines/syslog.py,
// collapsed into one type since Go doesn't need the asyncore
// dispatcher/manager split the Python version used to integrate with its
// cooperative scheduler.
type SyslogListener struct {
	Address  string
	Marker   string
	MaxLines int
	logger   *logging.Logger

	mu       sync.Mutex
	lines    []string
	conn     *net.UDPConn
	cancel   context.CancelFunc
	attempts int
}

// NewSyslogListener constructs a SyslogListener. marker defaults to
// DefaultSyslogMarker and maxLines to DefaultSyslogBacklog when zero.
func NewSyslogListener(address, marker string, maxLines int, logger *logging.Logger) *SyslogListener {
	if marker == "" {
		marker = DefaultSyslogMarker
	}
	if maxLines <= 0 {
		maxLines = DefaultSyslogBacklog
	}
	return &SyslogListener{Address: address, Marker: marker, MaxLines: maxLines, logger: logger}
}

// EnsureStarted binds and starts the listener if it isn't already running.
// A bind failure (most commonly address-already-in-use, when two nginx
// objects share a syslog target) is retried on subsequent calls up to
// maxBindAttempts, then suppressed — callers keep polling ReadLines, which
// simply returns nothing until a later EnsureStarted succeeds.
func (s *SyslogListener) EnsureStarted(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	attempts := s.attempts
	s.mu.Unlock()

	if attempts >= maxBindAttempts {
		return nil
	}

	err := s.start(ctx)
	if err != nil {
		s.mu.Lock()
		s.attempts++
		n := s.attempts
		s.mu.Unlock()
		if s.logger != nil {
			entry := s.logger.WithContext(ctx).WithError(err)
			if n >= maxBindAttempts {
				entry.Error("failed to start syslog listener after repeated attempts, giving up")
			} else {
				entry.Warn("failed to start syslog listener, will retry")
			}
		}
		return err
	}

	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	return nil
}

func (s *SyslogListener) start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.Address)
	if err != nil {
		return agenterrors.Wrap(agenterrors.ConfigSurface, "resolve syslog listen address", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return agenterrors.Wrap(agenterrors.DiscoverySurface, "bind syslog listener", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.mu.Unlock()

	go s.serve(runCtx, conn)
	return nil
}

func (s *SyslogListener) serve(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, 8192)
	for {
		if ctx.Err() != nil {
			conn.Close()
			return
		}
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			conn.Close()
			return
		}
		msg := strings.TrimSpace(string(buf[:n]))
		idx := strings.Index(msg, s.Marker)
		if idx < 0 {
			continue
		}
		s.push(msg[idx+len(s.Marker):])
	}
}

func (s *SyslogListener) push(record string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, record)
	if len(s.lines) > s.MaxLines {
		s.lines = s.lines[len(s.lines)-s.MaxLines:]
	}
}

// ReadLines returns every record buffered since the last call and clears
// the buffer, matching SyslogTail.__iter__'s drain-on-read semantics.
func (s *SyslogListener) ReadLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.lines
	s.lines = nil
	return out
}

// Stop tears down the UDP socket and its read goroutine.
func (s *SyslogListener) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.lines = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
