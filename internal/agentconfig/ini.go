package agentconfig

import (
	"gopkg.in/ini.v1"
)

// loadINI reads filename with gopkg.in/ini.v1 and returns its contents as a
// patch Tree, the Go equivalent of AbstractConfig.load's RawConfigParser
// walk ("for section in sections: for key, value in section.items()").
// ini.v1 hands back every value as a string; typed coercion happens lazily
// in Tree.get* so a value read from disk and one pushed as JSON from the
// cloud are handled uniformly.
func loadINI(filename string) (map[string]map[string]interface{}, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, filename)
	if err != nil {
		return nil, err
	}

	patch := make(map[string]map[string]interface{})
	for _, section := range file.Sections() {
		name := section.Name()
		if name == ini.DefaultSection && len(section.Keys()) == 0 {
			continue
		}
		kv := make(map[string]interface{}, len(section.Keys()))
		for _, key := range section.Keys() {
			kv[key.Name()] = key.String()
		}
		patch[name] = kv
	}
	return patch, nil
}

// saveINI persists one key back to filename's [section], preserving every
// other value and comment ini.v1 already parsed. Mirrors
// AbstractConfig.save's "if write_new: write the whole file back" branch.
func saveINI(filename string, section, key, value string) error {
	file, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, filename)
	if err != nil {
		return err
	}
	file.Section(section).Key(key).SetValue(value)
	return file.SaveTo(filename)
}
