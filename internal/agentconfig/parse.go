package agentconfig

import "strconv"

// INI values always arrive as strings (gopkg.in/ini.v1 hands back raw text);
// these helpers give Tree.get* a uniform way to coerce them alongside the
// typed values a cloud-pushed JSON patch carries directly.

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseInt(s string) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return i, true
}

func parseBool(s string) (bool, bool) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return b, true
}
