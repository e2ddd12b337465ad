package supervisor

import (
	"fmt"
	"strconv"
	"strings"
)

// semver is a three-part (major, minor, patch) version tuple, the Go
// equivalent of the original's plain (int, int, int) version_semver tuple.
type semver [3]int

// parseSemver parses "X.Y.Z", defaulting missing/unparseable components to
// 0 rather than failing outright — a malformed obsolete/old tuple from the
// cloud should never itself crash the version-gating check.
func parseSemver(raw string) semver {
	var v semver
	parts := strings.SplitN(raw, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			continue
		}
		v[i] = n
	}
	return v
}

// lessOrEqual compares two semvers lexicographically by (major, minor,
// patch), matching tuple comparison semantics in Python.
func (v semver) lessOrEqual(other semver) bool {
	for i := 0; i < 3; i++ {
		if v[i] != other[i] {
			return v[i] < other[i]
		}
	}
	return true
}

func (v semver) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}
