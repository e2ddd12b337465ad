package nginxobj

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
	"github.com/nginxinc/nginx-telemetry-agent/internal/configparser"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

// DefaultParseDelay is the minimum adaptive throttle window applied after
// a parse pass, regardless of how fast the tree itself parsed.
const DefaultParseDelay = 60 * time.Second

// fingerprint is a (path, mtime, permissions) summary of the files and
// directories a parse touched. It is computed from a finished parse, so it
// lets Collect skip events and uploads for an unchanged tree but does not
// save the parse itself.
type fingerprint map[string]string

func fingerprintOf(tree *configparser.Tree) fingerprint {
	fp := make(fingerprint, len(tree.Files)+len(tree.Directories))
	for path, f := range tree.Files {
		fp[path] = fmt.Sprintf("%d:%s", f.ModTime, f.Permissions)
	}
	for path, d := range tree.Directories {
		fp["dir:"+path] = fmt.Sprintf("%d:%s", d.ModTime, d.Permissions)
	}
	return fp
}

func (a fingerprint) equal(b fingerprint) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// ConfigCollector runs the nginx config parse gate: once the throttle
// window has passed it parses the tree, and when the parsed tree's
// file/directory fingerprint is unchanged it stops there, emitting nothing
// and leaving the throttle window as it was. Otherwise it throttles
// adaptively, optionally validates with an external tool (`nginx -t`), and
// enqueues a config payload when the checksum changes. The fingerprint is
// taken from the parsed tree, so an unchanged tree is still parsed on every
// pass that gets past the throttle window.
//
// Grounded on the NginxConfigCollector described in spec §4.5 ("Config
// collector parse gate"); original_source's equivalent
// (collectors/nginx/config.py) drives the same crossplane-backed parser
// this package replaces with configparser.Parser.
type ConfigCollector struct {
	ConfPath string

	Parser        *configparser.Parser
	Runner        subprocrunner.Runner
	Events        *databin.EventsBin
	Configs       *databin.ConfigBin
	UploadConfig  bool
	RunConfigTest bool
	MaxTestSize   int64
	MaxTestDur    time.Duration

	waitUntil     time.Time
	lastFP        fingerprint
	lastChecksum  string
	Previous      *configparser.Tree
}

// NewConfigCollector constructs a ConfigCollector. previous, when non-nil,
// is the last parsed tree carried over from a replaced object (an unchanged
// tree then yields no events or upload after a reload, though it is still
// parsed).
func NewConfigCollector(confPath string, parser *configparser.Parser, runner subprocrunner.Runner, events *databin.EventsBin, configs *databin.ConfigBin, uploadConfig, runConfigTest bool, previous *configparser.Tree) *ConfigCollector {
	cc := &ConfigCollector{
		ConfPath:      confPath,
		Parser:        parser,
		Runner:        runner,
		Events:        events,
		Configs:       configs,
		UploadConfig:  uploadConfig,
		RunConfigTest: runConfigTest,
		MaxTestSize:   20 * 1024 * 1024,
		MaxTestDur:    5 * time.Second,
		Previous:      previous,
	}
	if previous != nil {
		cc.lastFP = fingerprintOf(previous)
		cc.lastChecksum = previous.Checksum()
	}
	return cc
}

// Collect runs one pass of the parse gate. noDelay bypasses wait_until,
// used for the very first parse on object construction.
func (c *ConfigCollector) Collect(ctx context.Context, noDelay bool) error {
	now := clock.Now()
	if !noDelay && now.Before(c.waitUntil) {
		return nil
	}

	start := clock.Now()
	tree := c.Parser.Parse(c.ConfPath)
	duration := clock.Now().Sub(start)

	fp := fingerprintOf(tree)
	if c.lastFP != nil && fp.equal(c.lastFP) {
		return nil
	}

	c.lastFP = fp
	c.Previous = tree

	delay := 2 * duration
	if delay < DefaultParseDelay {
		delay = DefaultParseDelay
	}
	c.waitUntil = start.Add(delay)

	if len(tree.Errors) > 0 {
		for _, e := range tree.Errors {
			c.Events.Event(databin.Warning, e, false, 0)
		}
	} else {
		c.Events.Event(databin.Info, "nginx config parsed", false, 0)
	}

	checksum := tree.Checksum()
	if c.UploadConfig && checksum != c.lastChecksum {
		c.lastChecksum = checksum
		c.Configs.Set(serializeTree(tree), checksum)
	}

	if c.RunConfigTest && totalSize(tree) < c.MaxTestSize && c.Runner != nil {
		c.runConfigTest(ctx)
	}

	return nil
}

func (c *ConfigCollector) runConfigTest(ctx context.Context) {
	result, err := c.Runner.Run(ctx, c.MaxTestDur, "nginx", "-t", "-c", c.ConfPath)
	if err != nil {
		c.Events.Event(databin.Warning, "nginx config test failed to run: "+err.Error(), false, 0)
		return
	}
	if result.ExitCode == 0 {
		c.Events.Event(databin.Info, "nginx config test ok", false, 0)
		return
	}
	c.Events.Event(databin.Warning, "nginx config test failed", false, 0)
	for _, line := range result.StderrLines {
		c.Events.Event(databin.Critical, line, false, 0)
	}
}

func totalSize(tree *configparser.Tree) int64 {
	var total int64
	for _, f := range tree.Files {
		total += f.Size
	}
	return total
}

// serializeTree returns a SHA-256 hex digest of the tree's root file path,
// file count and SSL certificate count. This digest, not the config text,
// is the payload handed to the config bin.
func serializeTree(tree *configparser.Tree) string {
	h := sha256.New()
	fmt.Fprintf(h, "root:%s files:%d ssl:%d", tree.RootFile, len(tree.Files), len(tree.SSLCertificates))
	return hex.EncodeToString(h.Sum(nil))
}
