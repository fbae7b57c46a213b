// Package templates provides the embedded default assets seeded into a
// repository at init time.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

const rolesRoot = "roles"

//go:embed roles/*.md
var embeddedFS embed.FS

var requiredTemplates = []string{
	"roles/planner.md",
	"roles/reviewer.md",
	"roles/db.md",
	"roles/logic.md",
	"roles/ui.md",
	"roles/deploy.md",
}

// Required returns the template lookup keys every build must embed.
func Required() []string {
	return append([]string(nil), requiredTemplates...)
}

// RolePreamble returns the default prompt preamble for a built-in role.
// Custom roles report false and fall back to a generated stub.
func RolePreamble(role string) ([]byte, bool) {
	data, err := Read(path.Join(rolesRoot, role+".md"))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Read returns the embedded template contents for the provided lookup key.
func Read(name string) ([]byte, error) {
	cleaned, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}

	data, err := fs.ReadFile(embeddedFS, cleaned)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", cleaned, err)
	}
	return data, nil
}

// sanitizeName validates and normalizes template lookup keys.
func sanitizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("template name is required")
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", errors.New("template name must be relative")
	}
	if strings.Contains(trimmed, "\\") {
		return "", errors.New("template name must use forward slashes")
	}
	segments := strings.Split(trimmed, "/")
	for _, segment := range segments {
		if segment == "" {
			return "", errors.New("template name must not contain empty segments")
		}
		if segment == "." || segment == ".." {
			return "", errors.New("template name must not include dot segments")
		}
	}

	cleaned := path.Clean(trimmed)
	if !strings.HasPrefix(cleaned, rolesRoot+"/") {
		return "", errors.New("template name must start with roles/")
	}
	return cleaned, nil
}
