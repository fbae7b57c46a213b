package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// bracketPairs are the delimiters whose counts must balance.
var bracketPairs = [][2]string{
	{"{", "}"},
	{"(", ")"},
	{"[", "]"},
}

// CheckSyntax runs a cheap structural check on one file. Missing files pass,
// since a snapshot may reference files a later task removed.
func CheckSyntax(repoRoot string, relPath string) (bool, string, error) {
	fullPath := filepath.Join(repoRoot, strings.TrimPrefix(relPath, "/"))
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, "", nil
		}
		return false, "", fmt.Errorf("read %s: %w", relPath, err)
	}
	content := string(data)

	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".js", ".jsx", ".ts", ".tsx", ".py":
		for _, pair := range bracketPairs {
			if strings.Count(content, pair[0]) != strings.Count(content, pair[1]) {
				return false, fmt.Sprintf("mismatched %s%s in %s", pair[0], pair[1], relPath), nil
			}
		}
	case ".sql":
		if strings.Contains(strings.ToUpper(content), "CREATE TABLE") {
			if strings.Count(content, "(") != strings.Count(content, ")") {
				return false, fmt.Sprintf("mismatched parentheses in SQL file %s", relPath), nil
			}
		}
	}
	return true, "", nil
}
