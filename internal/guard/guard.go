// Package guard enforces the safety policy shared by the side-effecting
// tools: which commands may run, which paths may be touched, which URLs may
// be fetched.
package guard

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines the limits and scopes for tool execution.
type Policy struct {
	AllowedDirs      []string `json:"allowed_dirs"`       // roots the shell may cd into and files may live under
	AllowedFileGlobs []string `json:"allowed_file_globs"` // doublestar patterns relative to the allowed roots
	BlockedPorts     []int    `json:"blocked_ports"`
}

// DefaultPolicy provides safe defaults rooted at the workspace.
func DefaultPolicy(workspace string) Policy {
	return Policy{
		AllowedDirs:      []string{workspace, "/tmp"},
		AllowedFileGlobs: []string{"**"},
		BlockedPorts:     []int{22, 25, 465, 587, 3306, 5432, 6379, 9200, 11211, 27017},
	}
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// Command patterns that are never allowed, regardless of directory.
var dangerousCommands = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)[a-zA-Z]*\s+(/|/\*|~|\$HOME)(\s|$)`),
	regexp.MustCompile(`:\(\)\s*\{.*:\|:.*\}`), // fork bomb
	regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`),
	regexp.MustCompile(`\bdd\s+[^|;]*of=/dev/(sd|nvme|hd|vd)`),
	regexp.MustCompile(`\b(sudo|su)\b`),
	regexp.MustCompile(`(curl|wget)\s+[^|;]*\|\s*(ba)?sh`),
	regexp.MustCompile(`\bchmod\s+(-R\s+)?777\s+/(\s|$)`),
	regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|vd)`),
}

// File names that must never be read or written by the file tool.
var sensitiveFilePatterns = []string{
	".env", ".env.*", "*.pem", "*.key", "id_rsa*", "id_ed25519*",
	"*credentials*", "*secret*", ".netrc", ".npmrc", ".git-credentials",
	"*.p12", "*.pfx", "shadow", "passwd",
}

// CheckCommand rejects commands matching the dangerous-pattern denylist.
func (g *Guard) CheckCommand(cmd string) *Violation {
	for _, pattern := range dangerousCommands {
		if pattern.MatchString(cmd) {
			return &Violation{Rule: "dangerous_command", Message: "command blocked by safety policy"}
		}
	}
	return nil
}

// CheckDir verifies a working directory sits inside an allowed root.
func (g *Guard) CheckDir(dir string) *Violation {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return &Violation{Rule: "allowed_dirs", Message: "unresolvable directory: " + dir}
	}
	for _, root := range g.policy.AllowedDirs {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return nil
		}
	}
	return &Violation{Rule: "allowed_dirs", Message: "directory outside allowed roots: " + dir}
}

// CheckPath verifies a file path: no traversal, inside an allowed root,
// matching the allow globs, and not a sensitive name.
func (g *Guard) CheckPath(path string) *Violation {
	if strings.Contains(path, "..") || strings.HasPrefix(path, "~") {
		return &Violation{Rule: "path_traversal", Message: "path traversal not allowed: " + path}
	}
	if v := g.CheckDir(filepath.Dir(path)); v != nil {
		return &Violation{Rule: v.Rule, Message: "file " + v.Message}
	}

	base := filepath.Base(path)
	for _, pattern := range sensitiveFilePatterns {
		if match, err := doublestar.Match(pattern, base); err == nil && match {
			return &Violation{Rule: "sensitive_file", Message: "access to sensitive file denied: " + base}
		}
	}

	allowed := false
	for _, pattern := range g.policy.AllowedFileGlobs {
		if match, err := doublestar.Match(pattern, base); err == nil && match {
			allowed = true
			break
		}
		if match, err := doublestar.Match(pattern, path); err == nil && match {
			allowed = true
			break
		}
	}
	if !allowed {
		return &Violation{Rule: "allowed_file_globs", Message: "file access not allowed: " + path}
	}
	return nil
}

// CheckURL validates scheme, resolves the host and rejects private ranges
// and blocked ports.
func (g *Guard) CheckURL(raw string) *Violation {
	u, err := url.Parse(raw)
	if err != nil {
		return &Violation{Rule: "url", Message: "invalid url: " + raw}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Violation{Rule: "url_scheme", Message: "scheme must be http or https"}
	}

	if port := u.Port(); port != "" {
		for _, blocked := range g.policy.BlockedPorts {
			if port == fmt.Sprint(blocked) {
				return &Violation{Rule: "blocked_port", Message: "port not allowed: " + port}
			}
		}
	}

	host := u.Hostname()
	ips, err := net.LookupIP(host)
	if err != nil {
		return &Violation{Rule: "url_host", Message: "cannot resolve host: " + host}
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return &Violation{Rule: "private_address", Message: "host resolves to a private address: " + host}
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
