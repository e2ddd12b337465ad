// Package configparser implements a minimal NGINX configuration parser:
// it follows include directives from the main config file, inventories
// every file and directory it touches, and extracts ssl_certificate
// references for checksum coverage. It does not build a full directive
// AST — callers needing that run the configured external validator
// (nginx -t) instead, per spec §4.5.
//
// Grounded on original_source/amplify/agent/objects/nginx/config/parser.py
// (NginxConfigParser), collapsed to the include/include-cert regex scan and
// file/directory fingerprinting the spec's ConfigParser interface needs.
package configparser

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// includeOnlyRE matches `include <path>;` directives.
var includeOnlyRE = regexp.MustCompile(`(?:^|[;{}])\s*(include)\s+['"]?([^#;'"]*?)\s*;`)

// includeCertRE additionally matches `ssl_certificate <path>;` directives,
// which must be inventoried for checksum coverage even though they are not
// followed.
var includeCertRE = regexp.MustCompile(`(?:^|[;{}])\s*(include|ssl_certificate)\s+['"]?([^#;'"]*?)\s*;`)

// FileInfo fingerprints one file or directory the parser touched: content
// hash, size, mtime, and permissions, matching get_filesystem_info plus a
// SHA-256 of the content (spec §4.5/§8: "checksum over file SHA-256 ||
// permissions || mtime").
type FileInfo struct {
	Path        string
	Size        int64
	ModTime     int64
	Permissions string
	ContentSHA  string // empty for directories
	Lines       int
}

// Tree is the result of a parse pass: every file and directory visited,
// every ssl_certificate path found, and any errors encountered along the
// way (a broken include is recorded, not fatal).
type Tree struct {
	RootFile string

	Files       map[string]FileInfo
	Directories map[string]FileInfo

	SSLCertificates []string
	Errors          []string
}

// Checksum computes the config-wide checksum: SHA-256 over every file's
// (path, content hash, permissions, mtime) tuple in sorted path order, so
// the same config always hashes the same way (spec §8: "stable under
// no-op rewrites... files map keyed by content hash + mtime + perms").
func (t *Tree) Checksum() string {
	paths := make([]string, 0, len(t.Files))
	for p := range t.Files {
		paths = append(paths, p)
	}
	sortStrings(paths)

	h := sha256.New()
	for _, p := range paths {
		f := t.Files[p]
		fmt.Fprintf(h, "%s:%s:%s:%d\n", f.Path, f.ContentSHA, f.Permissions, f.ModTime)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Parser follows includes from a root nginx.conf and builds a Tree.
type Parser struct {
	// UploadSSL, when true, also inventories ssl_certificate targets into
	// Tree.SSLCertificates (spec §4.5 "upload_ssl" gate).
	UploadSSL bool
}

// New constructs a Parser.
func New(uploadSSL bool) *Parser {
	return &Parser{UploadSSL: uploadSSL}
}

// Parse reads filename and recursively follows every include directive it
// finds, returning the accumulated file/directory inventory.
func (p *Parser) Parse(filename string) *Tree {
	tree := &Tree{
		RootFile:    filename,
		Files:       make(map[string]FileInfo),
		Directories: make(map[string]FileInfo),
	}
	seen := make(map[string]bool)
	p.parseFile(filename, tree, seen)
	return tree
}

func (p *Parser) parseFile(filename string, tree *Tree, seen map[string]bool) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		tree.Errors = append(tree.Errors, fmt.Sprintf("failed to resolve %s: %v", filename, err))
		return
	}
	if seen[abs] {
		return
	}
	seen[abs] = true

	p.addDirectory(tree, filepath.Dir(abs))

	content, err := os.ReadFile(abs)
	if err != nil {
		tree.Errors = append(tree.Errors, fmt.Sprintf("failed to read %s: %v", abs, err))
		return
	}
	tree.Files[abs] = statFile(abs, content)

	matchRE := includeOnlyRE
	if p.UploadSSL {
		matchRE = includeCertRE
	}

	for _, m := range matchRE.FindAllStringSubmatch(string(content), -1) {
		directive, pattern := m[1], strings.TrimSpace(m[2])
		resolved := pattern
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(abs), resolved)
		}

		switch directive {
		case "include":
			matches, err := filepath.Glob(resolved)
			if err != nil || len(matches) == 0 {
				if !strings.ContainsAny(pattern, "*?[") {
					tree.Errors = append(tree.Errors, fmt.Sprintf("include not found: %s", resolved))
				}
				continue
			}
			for _, match := range matches {
				p.parseFile(match, tree, seen)
			}
		case "ssl_certificate":
			tree.SSLCertificates = append(tree.SSLCertificates, resolved)
			if info, err := os.Stat(resolved); err == nil {
				if content, err := os.ReadFile(resolved); err == nil {
					tree.Files[resolved] = statFileFromInfo(resolved, info, content)
				}
			}
		}
	}
}

func (p *Parser) addDirectory(tree *Tree, dir string) {
	if _, ok := tree.Directories[dir]; ok {
		return
	}
	info, err := os.Stat(dir)
	if err != nil {
		tree.Errors = append(tree.Errors, fmt.Sprintf("failed to stat directory %s: %v", dir, err))
		return
	}
	tree.Directories[dir] = FileInfo{
		Path:        dir,
		ModTime:     info.ModTime().Unix(),
		Permissions: permString(info.Mode()),
	}
}

func statFile(path string, content []byte) FileInfo {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{Path: path}
	}
	return statFileFromInfo(path, info, content)
}

func statFileFromInfo(path string, info os.FileInfo, content []byte) FileInfo {
	sum := sha256.Sum256(content)
	return FileInfo{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime().Unix(),
		Permissions: permString(info.Mode()),
		ContentSHA:  hex.EncodeToString(sum[:]),
		Lines:       countLines(content),
	}
}

func permString(mode os.FileMode) string {
	return fmt.Sprintf("%04o", mode.Perm())
}

func countLines(content []byte) int {
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	count := 0
	for scanner.Scan() {
		count++
	}
	return count
}
