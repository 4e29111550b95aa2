// Package guard enforces the policy for file ids handed to the file tools.
package guard

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines what the file tools may touch.
type Policy struct {
	AllowedFileGlobs []string `json:"allowed_file_globs" yaml:"allowed_file_globs"`
	MaxFileBytes     int      `json:"max_file_bytes" yaml:"max_file_bytes"`
}

// DefaultPolicy provides safe defaults.
var DefaultPolicy = Policy{
	AllowedFileGlobs: []string{"*", "**/*.txt", "**/*.md"},
	MaxFileBytes:     1 << 20,
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string {
	return v.Rule + ": " + v.Message
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	if p.MaxFileBytes <= 0 {
		p.MaxFileBytes = DefaultPolicy.MaxFileBytes
	}
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckFile verifies a file id is a clean relative path matching an allowed glob.
func (g *Guard) CheckFile(id string) *Violation {
	if v := g.CheckDangerousPath(id); v != nil {
		return v
	}
	for _, pattern := range g.policy.AllowedFileGlobs {
		match, err := doublestar.Match(pattern, id)
		if err == nil && match {
			return nil
		}
	}
	return &Violation{Rule: "allowed_file_globs", Message: "file id not allowed: " + id}
}

// CheckDangerousPath rejects ids that could escape the artifact directory.
func (g *Guard) CheckDangerousPath(id string) *Violation {
	switch {
	case strings.TrimSpace(id) == "":
		return &Violation{Rule: "file_id", Message: "file id is empty"}
	case strings.ContainsAny(id, "\\\x00"):
		return &Violation{Rule: "file_id", Message: "file id contains a forbidden character: " + id}
	case path.IsAbs(id):
		return &Violation{Rule: "file_id", Message: "file id must be relative: " + id}
	case path.Clean(id) != id || id == "." || strings.HasPrefix(id, "../") || id == "..":
		return &Violation{Rule: "file_id", Message: "file id must be a clean path inside the store: " + id}
	}
	return nil
}

// CheckSize verifies content fits the per-file limit.
func (g *Guard) CheckSize(n int) *Violation {
	if n > g.policy.MaxFileBytes {
		return &Violation{Rule: "max_file_bytes", Message: "file content exceeds the size limit"}
	}
	return nil
}
