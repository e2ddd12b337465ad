package agentconfig

import "github.com/joeshaw/envdecode"

// envOverlay carries the two environment variables spec §6 recognizes:
// AMPLIFY_ENVIRONMENT (consumed separately by internal/runtimeutil to pick
// a profile before this package ever runs) and AMPLIFY_IMAGENAME, applied
// here as a fallback for credentials.imagename when the config file leaves
// it blank.
type envOverlay struct {
	ImageName string `env:"AMPLIFY_IMAGENAME"`
}

// applyEnvOverlay decodes envOverlay and, if AMPLIFY_IMAGENAME is set and
// the tree's credentials.imagename is still empty, fills it in. Returns
// true if a value was applied.
func applyEnvOverlay(tree Tree) bool {
	var overlay envOverlay
	if err := envdecode.Decode(&overlay); err != nil {
		return false
	}
	if overlay.ImageName == "" {
		return false
	}
	if tree.getString("credentials", "imagename", "") != "" {
		return false
	}
	if _, ok := tree["credentials"]; !ok {
		tree["credentials"] = make(map[string]interface{})
	}
	tree["credentials"]["imagename"] = overlay.ImageName
	return true
}
