package supervisor

import (
	"bytes"
	"strconv"
)

// defaultBackpressureDelaySeconds mirrors HTTP503Error's default delay when
// neither the Retry-After header nor the response body parses.
const defaultBackpressureDelaySeconds = 60

// parseRetryAfterSeconds reads an integer retry delay from the Retry-After
// header first, falling back to the response body, matching HTTP503Error
// (common/cloud.py) and internal/bridge's identical parseRetryAfter.
func parseRetryAfterSeconds(header string, body []byte) int {
	if n, err := strconv.Atoi(header); err == nil {
		return n
	}
	if n, err := strconv.ParseFloat(string(bytes.TrimSpace(body)), 64); err == nil {
		return int(n)
	}
	return defaultBackpressureDelaySeconds
}
