// Package nginxobj implements the concrete NginxObject variant: identity
// extraction from a running master process, the config-parse gate, and
// the discovery logic a Manager drives.
//
// Grounded on original_source/amplify/agent/objects/nginx/{object,binary}.py.
package nginxobj

import (
	"regexp"
	"strings"
)

const (
	defaultPrefix   = "/usr/local/nginx"
	defaultConfPath = "conf/nginx.conf"
)

// SSLInfo captures one "built with"/"run with" SSL library line from
// `nginx -V`.
type SSLInfo struct {
	Library string
	Version string
	Date    string
}

// VersionInfo is the parsed result of `nginx -V`.
type VersionInfo struct {
	Version     string
	PlusEnabled bool
	PlusRelease string
	SSLBuilt    *SSLInfo
	SSLRun      *SSLInfo
	Configure   map[string]string
}

var (
	builtWithRE   = regexp.MustCompile(`^built with (\S+) +(\S+)(?: +(\d{1,2} +\w{3,} +\d{4}))?`)
	runningWithRE = regexp.MustCompile(`\(running with (\S+) +(\S+)(?: +(\d{1,2} +\w{3,} +\d{4}))?\)$`)
	runWithRE     = regexp.MustCompile(`^run with (\S+) +(\S+)(?: +(\d{1,2} +\w{3,} +\d{4}))?`)
	versionRE     = regexp.MustCompile(`.*/([\d\w.]+)`)
	plusReleaseRE = regexp.MustCompile(`.*\(([\w-]+)\).*`)
)

// ParseVersion parses the stderr lines of `nginx -V` into a VersionInfo.
// Matches binary.py's nginx_v.
func ParseVersion(stderrLines []string) VersionInfo {
	info := VersionInfo{Configure: map[string]string{}}

	for _, line := range stderrLines {
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, "built with") && strings.Contains(lower, "ssl"):
			if m := builtWithRE.FindStringSubmatch(line); m != nil {
				info.SSLBuilt = &SSLInfo{Library: m[1], Version: m[2], Date: m[3]}
				info.SSLRun = info.SSLBuilt
				if rm := runningWithRE.FindStringSubmatch(line); rm != nil {
					info.SSLRun = &SSLInfo{Library: rm[1], Version: rm[2], Date: rm[3]}
				}
			}
		case strings.HasPrefix(lower, "run with") && strings.Contains(lower, "ssl"):
			if m := runWithRE.FindStringSubmatch(line); m != nil {
				info.SSLRun = &SSLInfo{Library: m[1], Version: m[2], Date: m[3]}
			}
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) < 2 {
			continue
		}
		key, value := parts[0], parts[1]

		switch key {
		case "nginx version":
			if m := versionRE.FindStringSubmatch(value); m != nil {
				info.Version = m[1]
			} else {
				info.Version = strings.TrimSpace(value)
			}
			if strings.Contains(value, "plus") {
				if m := plusReleaseRE.FindStringSubmatch(value); m != nil {
					info.PlusEnabled = true
					info.PlusRelease = m[1]
				}
			}
		case "configure arguments":
			info.Configure = parseConfigureArguments(value)
		}
	}

	return info
}

// parseConfigureArguments splits nginx -V's "configure arguments:" value
// into a flag-name -> value map. Flags with no "=" are recorded with an
// empty value (their presence is what matters, e.g. --with-http_ssl_module).
func parseConfigureArguments(value string) map[string]string {
	out := make(map[string]string)
	for _, token := range strings.Fields(value) {
		token = strings.TrimPrefix(token, "--")
		if eq := strings.IndexByte(token, '='); eq >= 0 {
			out[token[:eq]] = token[eq+1:]
		} else {
			out[token] = ""
		}
	}
	return out
}

// PrefixAndConfPath extracts the -p/-c flags passed to a running master
// process, falling back to nginx -V's configure arguments and then to
// nginx's compiled-in defaults. Matches get_prefix_and_conf_path.
func PrefixAndConfPath(cmdline []string, configure map[string]string) (binPath, prefix, confPath string) {
	flat := strings.Join(cmdline, " ")
	flat = strings.Replace(flat, "nginx: master process ", "", 1)
	tokens := strings.Fields(flat)
	if len(tokens) == 0 {
		return "", defaultPrefix, defaultConfPath
	}
	binPath = tokens[0]

	for i := 1; i < len(tokens); i++ {
		switch tokens[i] {
		case "-c":
			if i+1 < len(tokens) {
				confPath = tokens[i+1]
				i++
			}
		case "-p":
			if i+1 < len(tokens) {
				prefix = tokens[i+1]
				i++
			}
		}
	}

	if prefix == "" {
		if v, ok := configure["prefix"]; ok && v != "" {
			prefix = v
		} else {
			prefix = defaultPrefix
		}
	}
	if confPath == "" {
		if v, ok := configure["conf-path"]; ok && v != "" {
			confPath = v
		} else {
			confPath = defaultConfPath
		}
	}

	return binPath, prefix, confPath
}
