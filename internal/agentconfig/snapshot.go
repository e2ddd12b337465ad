package agentconfig

import "time"

// Snapshot is an immutable view of the config tree at one point in time.
// Config.Apply never mutates a published Snapshot; it clones, merges, and
// publishes a new one, matching the copy/compare-and-swap discipline spec
// §9 calls for.
type Snapshot struct {
	tree Tree
}

// Daemon mirrors the [daemon] section.
type Daemon struct {
	PID      string
	CPULimit float64
	CPUSleep time.Duration
}

// Cloud mirrors the [cloud] section.
type Cloud struct {
	APIURL        string
	APITimeout    time.Duration
	TalkInterval  time.Duration
	PushInterval  time.Duration
	Gzip          int
	VerifySSLCert bool
}

// Credentials mirrors the [credentials] section.
type Credentials struct {
	APIKey    string
	UUID      string
	Hostname  string
	ImageName string
}

// PollIntervals mirrors a containers.<type>.poll_intervals.* subsection.
type PollIntervals struct {
	Meta     time.Duration
	Metrics  time.Duration
	Configs  time.Duration
	Logs     time.Duration
	Discover time.Duration
}

func (s Snapshot) Daemon() Daemon {
	return Daemon{
		PID:      s.tree.getString("daemon", "pid", ""),
		CPULimit: s.tree.getFloat("daemon", "cpu_limit", 10.0),
		CPUSleep: secondsDuration(s.tree.getFloat("daemon", "cpu_sleep", 0.2)),
	}
}

func (s Snapshot) Cloud() Cloud {
	return Cloud{
		APIURL:        s.tree.getString("cloud", "api_url", ""),
		APITimeout:    secondsDuration(s.tree.getFloat("cloud", "api_timeout", 5.0)),
		TalkInterval:  secondsDuration(s.tree.getFloat("cloud", "talk_interval", 120.0)),
		PushInterval:  secondsDuration(s.tree.getFloat("cloud", "push_interval", 20.0)),
		Gzip:          s.tree.getInt("cloud", "gzip", 6),
		VerifySSLCert: s.tree.getBool("cloud", "verify_ssl_cert", false),
	}
}

func (s Snapshot) Credentials() Credentials {
	return Credentials{
		APIKey:    s.tree.getString("credentials", "api_key", ""),
		UUID:      s.tree.getString("credentials", "uuid", ""),
		Hostname:  s.tree.getString("credentials", "hostname", ""),
		ImageName: s.tree.getString("credentials", "imagename", ""),
	}
}

// ContainerString reads a containers.<containerType>.<key> string value,
// e.g. "nginx", "upload_config" -> "true"/"false" as configured by the user.
func (s Snapshot) ContainerString(containerType, key, def string) string {
	return s.tree.getString("containers."+containerType, key, def)
}

func (s Snapshot) ContainerBool(containerType, key string, def bool) bool {
	return s.tree.getBool("containers."+containerType, key, def)
}

func (s Snapshot) ContainerDuration(containerType, key string, def time.Duration) time.Duration {
	v, ok := s.tree["containers."+containerType]
	if !ok {
		return def
	}
	if raw, ok := v[key]; ok {
		if f, ok := toFloat(raw); ok {
			return secondsDuration(f)
		}
	}
	return def
}

// PollIntervalsFor reads containers.<containerType>.poll_intervals.{meta,
// metrics,configs,logs,discover}, a direct port of the
// AmplifyContainerHandler poll-interval resolution in objects/supervisor.py.
func (s Snapshot) PollIntervalsFor(containerType string, defaults PollIntervals) PollIntervals {
	section := "containers." + containerType + ".poll_intervals"
	kv, ok := s.tree[section]
	if !ok {
		return defaults
	}
	return PollIntervals{
		Meta:     durationOr(kv, "meta", defaults.Meta),
		Metrics:  durationOr(kv, "metrics", defaults.Metrics),
		Configs:  durationOr(kv, "configs", defaults.Configs),
		Logs:     durationOr(kv, "logs", defaults.Logs),
		Discover: durationOr(kv, "discover", defaults.Discover),
	}
}

func durationOr(kv map[string]interface{}, key string, def time.Duration) time.Duration {
	raw, ok := kv[key]
	if !ok {
		return def
	}
	f, ok := toFloat(raw)
	if !ok {
		return def
	}
	return secondsDuration(f)
}

// NginxOverride reads an [nginx] section override (stub_status/plus_status/
// api URL overrides from spec §6).
func (s Snapshot) NginxOverride(key string) (string, bool) {
	v, ok := s.tree["nginx"]
	if !ok {
		return "", false
	}
	raw, ok := v[key]
	if !ok {
		return "", false
	}
	str, ok := raw.(string)
	return str, ok && str != ""
}

// Tags returns the [tags] section as a plain string map.
func (s Snapshot) Tags() map[string]string {
	kv, ok := s.tree["tags"]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

// Section exposes a raw section for callers that need generic access
// (the Supervisor's capability-flag/version-gating logic reads arbitrary
// cloud-pushed keys this way).
func (s Snapshot) Section(name string) map[string]interface{} {
	return s.tree[name]
}

func secondsDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		return parseFloat(n)
	default:
		return 0, false
	}
}
