package logparse

import "testing"

func TestDecomposeFormat_Combined(t *testing.T) {
	keys, nonKey, firstIsKey := DecomposeFormat(CombinedLogFormat)

	wantKeys := []string{
		"remote_addr", "remote_user", "time_local", "request",
		"status", "body_bytes_sent", "http_referer", "http_user_agent",
	}
	if len(keys) != len(wantKeys) {
		t.Fatalf("expected %d keys, got %d: %v", len(wantKeys), len(keys), keys)
	}
	for i, k := range wantKeys {
		if keys[i] != k {
			t.Fatalf("key %d: expected %q, got %q (all: %v)", i, k, keys[i], keys)
		}
	}
	if !firstIsKey {
		t.Fatal("combined format begins with a variable ($remote_addr), not a literal")
	}
	if len(nonKey) == 0 {
		t.Fatal("expected non-key literal patterns")
	}
}

func TestAccessLogParser_CombinedLine(t *testing.T) {
	p := NewAccessLogParser("")
	line := `127.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "GET /index.html HTTP/1.1" 200 612 "-" "curl/8.0"`

	rec, ok := p.Parse(line)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if rec.Malformed {
		t.Fatal("expected a well-formed line")
	}
	if v, _ := rec.String("request_method"); v != "GET" {
		t.Fatalf("expected method GET, got %q", v)
	}
	if v, _ := rec.String("request_uri"); v != "/index.html" {
		t.Fatalf("expected uri /index.html, got %q", v)
	}
	if v, _ := rec.String("server_protocol"); v != "HTTP/1.1" {
		t.Fatalf("expected protocol HTTP/1.1, got %q", v)
	}
	if v, _ := rec.String("status"); v != "200" {
		t.Fatalf("expected status 200, got %q", v)
	}
	if v, _ := rec.Int64("body_bytes_sent"); v != 612 {
		t.Fatalf("expected body_bytes_sent 612, got %d", v)
	}
}

func TestAccessLogParser_MalformedRequestTooShortMethod(t *testing.T) {
	p := NewAccessLogParser("")
	line := `127.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "AB /x HTTP/1.1" 200 0 "-" "-"`

	rec, ok := p.Parse(line)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if !rec.Malformed {
		t.Fatal("expected a 2-char method to be marked malformed")
	}
}

func TestAccessLogParser_MalformedUnsplittableRequest(t *testing.T) {
	p := NewAccessLogParser("")
	line := `127.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "garbage with too many words here" 200 0 "-" "-"`

	rec, ok := p.Parse(line)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if !rec.Malformed {
		t.Fatal("expected an unsplittable request field to be marked malformed")
	}
}

func TestAccessLogParser_TimeArrayDiscardsHugeValues(t *testing.T) {
	raw := `$remote_addr $request_time`
	p := NewAccessLogParser(raw)

	rec, ok := p.Parse("127.0.0.1 0.001,20000000,0.002")
	if !ok {
		t.Fatal("expected line to parse")
	}
	values, ok := rec.Times("request_time")
	if !ok {
		t.Fatal("expected request_time to be present")
	}
	if len(values) != 2 || values[0] != 0.001 || values[1] != 0.002 {
		t.Fatalf("expected huge sample discarded, got %v", values)
	}
}

func TestAccessLogParser_CommaSeparatedUpstreamStatus(t *testing.T) {
	raw := `$remote_addr $upstream_status`
	p := NewAccessLogParser(raw)

	rec, ok := p.Parse("127.0.0.1 502, 200")
	if !ok {
		t.Fatal("expected line to parse")
	}
	statuses, ok := rec.List("upstream_status")
	if !ok {
		t.Fatal("expected upstream_status to be present as a list")
	}
	if len(statuses) != 2 || statuses[0] != "502" || statuses[1] != "200" {
		t.Fatalf("unexpected upstream_status list: %v", statuses)
	}
}

func TestAccessLogParser_UnmatchableLiteralFailsToParse(t *testing.T) {
	p := NewAccessLogParser("")
	if _, ok := p.Parse("this does not look like a combined log line at all"); ok {
		t.Fatal("expected parse to fail when a literal delimiter is missing")
	}
}
