// Package logparse implements NGINX access and error log parsing: template
// decomposition of a log_format string into a fast split-by-literal
// parser, and the fixed regex set that classifies error log lines.
//
// Grounded on original_source/amplify/agent/common/util/text.py
// (decompose_format/parse_line_split),
// original_source/amplify/agent/objects/nginx/log/{access,error}.py, and
// original_source/amplify/agent/collectors/nginx/{accesslog,errorlog}.py.
package logparse

import (
	"strings"
	"unicode"
)

// DecomposeFormat breaks an nginx log_format string into the ordered list
// of "$variable" keys it references and the literal text between them
// (non-key patterns), plus whether the format begins with a variable
// rather than literal text. ParseLineSplit uses the latter two to recover
// per-key values from a log line without a general-purpose regex.
func DecomposeFormat(raw string) (keys []string, nonKeyPatterns []string, firstValueIsKey bool) {
	var current strings.Builder

	flushNonKey := func() {
		if current.Len() > 0 {
			nonKeyPatterns = append(nonKeyPatterns, current.String())
			current.Reset()
		}
	}

	for _, ch := range raw {
		switch {
		case isKeyChar(ch):
			current.WriteRune(ch)
		case ch == '$':
			if len(nonKeyPatterns) == 0 && current.Len() == 0 {
				firstValueIsKey = true
			}
			flushNonKey()
			current.WriteRune('$')
		default:
			if strings.HasPrefix(current.String(), "$") {
				keys = append(keys, parseKey(current.String()))
				current.Reset()
				if ch != '}' {
					current.WriteRune(ch)
				}
			} else {
				current.WriteRune(ch)
			}
		}
	}

	if current.Len() > 0 {
		if strings.HasPrefix(current.String(), "$") {
			keys = append(keys, parseKey(current.String()))
		} else {
			nonKeyPatterns = append(nonKeyPatterns, current.String())
		}
	}

	return keys, nonKeyPatterns, firstValueIsKey
}

func isKeyChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '{'
}

var keyReplacer = strings.NewReplacer("$", "", "{", "", "}", "")

func parseKey(raw string) string { return keyReplacer.Replace(raw) }

// ParseLineSplit recovers key->raw-string-value pairs from a line by
// iteratively splitting on each literal non-key pattern in order. It
// returns ok=false when a literal pattern isn't found in the remaining
// line — the line can't be aligned to this format at all (distinct from a
// line that parses but is semantically malformed).
func ParseLineSplit(line string, keys, nonKeyPatterns []string, firstValueIsKey bool) (map[string]string, bool) {
	var values []string
	rest := line

	for i, pattern := range nonKeyPatterns {
		idx := strings.Index(rest, pattern)
		if idx < 0 {
			return nil, false
		}
		value := rest[:idx]
		rest = rest[idx+len(pattern):]
		if firstValueIsKey || i > 0 {
			values = append(values, value)
		}
	}

	if len(rest) > 0 || len(keys) == len(values)+1 {
		values = append(values, rest)
	}

	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		out[keys[i]] = values[i]
	}
	return out, true
}
