package logparse

import (
	"strconv"
	"strings"
)

// CombinedLogFormat is nginx's built-in "combined" log_format, used when no
// explicit log_format directive is configured for an access_log.
const CombinedLogFormat = `$remote_addr - $remote_user [$time_local] "$request" ` +
	`$status $body_bytes_sent "$http_referer" "$http_user_agent"`

type castKind int

const (
	castString castKind = iota
	castInt
	castFloat
)

// commonVariableCasts mirrors NginxAccessLogParser.common_variables: the
// subset of well-known nginx log variables with a non-default type cast.
// Any key not listed here casts as a plain string (the parser's
// default_variable).
var commonVariableCasts = map[string]castKind{
	"body_bytes_sent":          castInt,
	"bytes_sent":               castInt,
	"connection_requests":      castInt,
	"msec":                     castFloat,
	"request_length":           castInt,
	"upstream_response_length": castInt,
	"gzip_ratio":               castFloat,
}

// commaSeparatedKeys are nginx variables that pack multiple upstream
// values (on upstream retries/switches) separated by ", ".
var commaSeparatedKeys = map[string]bool{
	"upstream_addr":   true,
	"upstream_status": true,
}

// maxPlausibleTimeValue discards individual *_time samples above this
// threshold — a workaround for a historical nginx bug that occasionally
// emits a bogus huge request_time value.
const maxPlausibleTimeValue = 10000000

// Record is one parsed access log line.
type Record struct {
	Malformed bool
	Fields    map[string]interface{}
}

// String returns Fields[key] as a string, or ("", false) if absent or not
// a string.
func (r *Record) String(key string) (string, bool) {
	v, ok := r.Fields[key].(string)
	return v, ok
}

// Int64 returns Fields[key] as an int64.
func (r *Record) Int64(key string) (int64, bool) {
	v, ok := r.Fields[key].(int64)
	return v, ok
}

// Float64 returns Fields[key] as a float64.
func (r *Record) Float64(key string) (float64, bool) {
	v, ok := r.Fields[key].(float64)
	return v, ok
}

// Times returns a *_time field's parsed sample array.
func (r *Record) Times(key string) ([]float64, bool) {
	v, ok := r.Fields[key].([]float64)
	return v, ok
}

// List returns a comma-separated field's parsed value list.
func (r *Record) List(key string) ([]string, bool) {
	v, ok := r.Fields[key].([]string)
	return v, ok
}

// AccessLogParser parses lines written in one fixed nginx log_format.
//
// Grounded on NginxAccessLogParser (objects/nginx/log/access.py).
type AccessLogParser struct {
	RawFormat       string
	Keys            []string
	NonKeyPatterns  []string
	FirstValueIsKey bool
}

// NewAccessLogParser builds a parser for rawFormat, or CombinedLogFormat if
// rawFormat is empty.
func NewAccessLogParser(rawFormat string) *AccessLogParser {
	if rawFormat == "" {
		rawFormat = CombinedLogFormat
	}
	keys, nonKey, firstIsKey := DecomposeFormat(rawFormat)
	return &AccessLogParser{RawFormat: rawFormat, Keys: keys, NonKeyPatterns: nonKey, FirstValueIsKey: firstIsKey}
}

// NumLinesPerRecord is how many physical log lines make up one record —
// more than 1 for a log_format containing literal newlines.
func (p *AccessLogParser) NumLinesPerRecord() int {
	return strings.Count(p.RawFormat, "\n") + 1
}

// Parse parses one (possibly already-joined multiline) log record. ok is
// false when the line can't be aligned to this format at all; a line that
// parses but fails its semantic checks (e.g. an unparsable "request" field)
// is returned with Malformed set instead.
func (p *AccessLogParser) Parse(line string) (*Record, bool) {
	values, ok := ParseLineSplit(line, p.Keys, p.NonKeyPatterns, p.FirstValueIsKey)
	if !ok {
		return nil, false
	}

	rec := &Record{Fields: make(map[string]interface{}, len(p.Keys))}

	for _, key := range p.Keys {
		raw, present := values[key]
		if !present {
			continue
		}

		if strings.HasSuffix(key, "_time") {
			if raw != "" && raw != "-" {
				if arr := parseTimeArray(raw); len(arr) > 0 {
					rec.Fields[key] = arr
				}
			}
			continue
		}

		if commaSeparatedKeys[key] {
			if strings.Contains(raw, ",") {
				rec.Fields[key] = splitCommaList(raw)
			} else {
				rec.Fields[key] = []string{raw}
			}
			continue
		}

		rec.Fields[key] = castValue(raw, commonVariableCasts[key])
	}

	if reqRaw, ok := rec.Fields["request"].(string); ok {
		parts := strings.Split(reqRaw, " ")
		if len(parts) != 3 {
			rec.Malformed = true
		} else {
			rec.Fields["request_method"] = parts[0]
			rec.Fields["request_uri"] = parts[1]
			rec.Fields["server_protocol"] = parts[2]
			if len(parts[0]) < 3 {
				rec.Malformed = true
			}
		}
	}

	return rec, true
}

func parseTimeArray(raw string) []float64 {
	var out []float64
	for _, piece := range strings.Split(strings.ReplaceAll(raw, " ", ""), ",") {
		f, err := strconv.ParseFloat(piece, 64)
		if err != nil {
			continue
		}
		if f > maxPlausibleTimeValue {
			continue
		}
		out = append(out, f)
	}
	return out
}

func splitCommaList(raw string) []string {
	parts := strings.Split(strings.ReplaceAll(raw, " ", ""), ",")
	return parts
}

func castValue(raw string, kind castKind) interface{} {
	switch kind {
	case castInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return int64(0)
		}
		return v
	case castFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return float64(0)
		}
		return v
	default:
		return raw
	}
}
