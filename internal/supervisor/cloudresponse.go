package supervisor

// CloudResponse is the control plane's reply to an agent/ handshake POST,
// a typed port of CloudResponse (common/cloud.py).
type CloudResponse struct {
	Config       map[string]map[string]interface{} `json:"config"`
	Messages     []string                           `json:"messages"`
	Versions     VersionsInfo                       `json:"versions"`
	Capabilities map[string]bool                    `json:"capabilities"`
	Objects      []CloudObject                      `json:"objects"`
}

// VersionsInfo is the version-gating triple the cloud returns alongside a
// handshake response.
type VersionsInfo struct {
	Current  string `json:"current"`
	Obsolete string `json:"obsolete"`
	Old      string `json:"old"`
}

// CloudObject is one per-object config/filter entry in a CloudResponse,
// used to detect and apply per-object config diffs (spec §4.8).
type CloudObject struct {
	ID      int                    `json:"id"`
	Type    string                 `json:"type"`
	Config  map[string]interface{} `json:"config"`
	Filters []string               `json:"filters"`
}
