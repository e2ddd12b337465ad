package agentconfig

import (
	"os"

	"github.com/nginxinc/nginx-telemetry-agent/internal/runtimeutil"
)

// defaultTree returns the base section tree shared by every profile, a port
// of app.py's Config.config class attribute.
func defaultTree() Tree {
	wd, _ := os.Getwd()
	return Tree{
		"daemon": {
			"pid":        wd + "/nginx_telemetry_agent.pid",
			"cpu_limit":  10.0,
			"cpu_sleep":  0.2,
		},
		"containers": {},
		"cloud": {
			"talk_interval":   120.0,
			"push_interval":   20.0,
			"api_url":         "",
			"api_timeout":     5.0,
			"verify_ssl_cert": false,
			"gzip":            6,
		},
		"credentials": {
			"api_key":   "",
			"uuid":      "",
			"hostname":  "",
			"imagename": "",
		},
		"agent": {
			"launchers": []string{},
		},
	}
}

// profileOverrides returns the per-environment overrides layered on top of
// defaultTree, a port of DevelopmentConfig/SandboxConfig/ProductionConfig's
// config_changes class attributes.
func profileOverrides(env runtimeutil.Environment) map[string]map[string]interface{} {
	switch env {
	case runtimeutil.Development:
		return map[string]map[string]interface{}{
			"cloud": {
				"api_url":         "http://receiver:5000/1.4",
				"verify_ssl_cert": false,
			},
			"credentials": {
				"api_key": "DEFAULT",
			},
			"daemon": {
				"pid":       "/var/run/nginx_telemetry_agent.pid",
				"cpu_limit": 100000.0,
				"cpu_sleep": 0.01,
			},
		}
	case runtimeutil.Sandbox:
		return map[string]map[string]interface{}{
			"cloud": {
				"api_url":         "http://localhost:5001/1.4",
				"verify_ssl_cert": false,
			},
			"credentials": {
				"api_key": "DEFAULT",
			},
		}
	default: // Production
		return nil
	}
}

// DefaultTree builds the complete default Tree for env: the shared base plus
// the profile's overrides applied on top, exactly as Config.__init__ applies
// config_changes over the inherited config dict.
func DefaultTree(env runtimeutil.Environment) Tree {
	tree := defaultTree()
	if overrides := profileOverrides(env); overrides != nil {
		tree.apply(overrides, nil)
	}
	return tree
}

// writeNew reports whether a profile persists config.save() calls back to
// disk, a port of write_new (false only for DevelopmentConfig).
func writeNew(env runtimeutil.Environment) bool {
	return env != runtimeutil.Development
}
