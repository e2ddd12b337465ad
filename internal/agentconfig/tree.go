// Package agentconfig implements the agent's layered configuration: an
// INI-like on-disk file (spec §6), an environment-variable overlay, and an
// immutable-snapshot "Config tank" (spec §9) with a copy-on-write Apply
// operation used by both local file reloads and cloud-pushed config diffs.
//
// Grounded on original_source/amplify/agent/common/config/{abstract,app}.py
// (AbstractConfig/Config's section tree and recursive apply) and
// original_source/amplify/agent/tanks/config.py (ConfigTank's section
// indexing), adapted to a copy-on-write snapshot shape.
package agentconfig

// Tree is the generic section/key config representation: a direct port of
// AbstractConfig.config's dict-of-dicts shape. Known sections
// (daemon/cloud/credentials/agent/containers/tags/listeners/proxies/nginx)
// are plain entries in the outer map, same as the Python original.
type Tree map[string]map[string]interface{}

// clone deep-copies a Tree one level down (the only level Apply mutates).
func (t Tree) clone() Tree {
	out := make(Tree, len(t))
	for section, kv := range t {
		cp := make(map[string]interface{}, len(kv))
		for k, v := range kv {
			cp[k] = v
		}
		out[section] = cp
	}
	return out
}

// apply recursively merges patch into t, returning the number of keys that
// were added or changed. unchangeable keys ("section.key") are skipped
// silently, the same guard AbstractConfig.apply applies via self.unchangeable.
//
// A port of AbstractConfig.apply: sections present in both patch and t are
// merged key-by-key; sections absent from t are added wholesale; a changed
// value only counts if it differs from the current one.
func (t Tree) apply(patch map[string]map[string]interface{}, unchangeable map[string]bool) int {
	changes := 0
	for section, kv := range patch {
		current, ok := t[section]
		if !ok {
			current = make(map[string]interface{}, len(kv))
			t[section] = current
		}
		for k, v := range kv {
			fullKey := section + "." + k
			if unchangeable[fullKey] {
				continue
			}
			old, existed := current[k]
			if !existed || old != v {
				current[k] = v
				changes++
			}
		}
	}
	return changes
}

// get returns a key from a section, or def if the section/key is absent.
func (t Tree) get(section, key string, def interface{}) interface{} {
	kv, ok := t[section]
	if !ok {
		return def
	}
	v, ok := kv[key]
	if !ok {
		return def
	}
	return v
}

func (t Tree) getString(section, key, def string) string {
	v := t.get(section, key, def)
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func (t Tree) getFloat(section, key string, def float64) float64 {
	v := t.get(section, key, def)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, ok := parseFloat(n)
		if !ok {
			return def
		}
		return f
	default:
		return def
	}
}

func (t Tree) getInt(section, key string, def int) int {
	v := t.get(section, key, def)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, ok := parseInt(n)
		if !ok {
			return def
		}
		return i
	default:
		return def
	}
}

func (t Tree) getBool(section, key string, def bool) bool {
	v := t.get(section, key, def)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, ok := parseBool(b)
		if !ok {
			return def
		}
		return parsed
	default:
		return def
	}
}
