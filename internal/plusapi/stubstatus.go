// Package plusapi implements NGINX stub_status text parsing, NGINX Plus
// status/API JSON extraction, and the process-wide PlusCache shared by
// collectors of the same nginx instance.
//
// Grounded on original_source/amplify/agent/common/util/stats.py
// (stub_status regex) and
// original_source/amplify/agent/collectors/plus/util/{status,api}/*.py
// (the per-section ExtractorFns, lifted as gjson-path extraction instead of
// direct dict indexing).
package plusapi

import (
	"fmt"
	"regexp"
	"strconv"
)

// stubStatusRE matches the fixed-shape stub_status response body (spec §6):
//
//	Active connections: <n>
//	 <accepts> <handled> <requests>
//	 Reading: <r> Writing: <w> Waiting: <waiting>
var stubStatusRE = regexp.MustCompile(
	`Active connections:\s*(\d+)\s*\n\s*(\d+)\s+(\d+)\s+(\d+)\s*\n\s*Reading:\s*(\d+)\s+Writing:\s*(\d+)\s+Waiting:\s*(\d+)`,
)

// StubStatus is the parsed result of one stub_status sample, plus the
// derived fields spec §6 requires.
type StubStatus struct {
	Connections int64
	Accepts     int64
	Handled     int64
	Requests    int64
	Reading     int64
	Writing     int64
	Waiting     int64
}

// ErrMalformedStubStatus is returned when the body doesn't match the
// expected 7-integer shape.
var ErrMalformedStubStatus = fmt.Errorf("stub_status body did not match expected shape")

// ParseStubStatus parses a raw stub_status response body.
func ParseStubStatus(body string) (StubStatus, error) {
	m := stubStatusRE.FindStringSubmatch(body)
	if m == nil {
		return StubStatus{}, ErrMalformedStubStatus
	}
	ints := make([]int64, 7)
	for i, s := range m[1:] {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return StubStatus{}, ErrMalformedStubStatus
		}
		ints[i] = v
	}
	return StubStatus{
		Connections: ints[0],
		Accepts:     ints[1],
		Handled:     ints[2],
		Requests:    ints[3],
		Reading:     ints[4],
		Writing:     ints[5],
		Waiting:     ints[6],
	}, nil
}

// Dropped is accepts - handled (connections refused before being handed to
// a worker).
func (s StubStatus) Dropped() int64 { return s.Accepts - s.Handled }

// Current is the raw "Active connections" value.
func (s StubStatus) Current() int64 { return s.Connections }

// Active is connections currently being served, excluding idle keepalive
// connections waiting for the next request.
func (s StubStatus) Active() int64 { return s.Connections - s.Waiting }

// Idle is the "Waiting" value: open keepalive connections with no active
// request.
func (s StubStatus) Idle() int64 { return s.Waiting }
