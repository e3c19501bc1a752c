package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CanonicalPath resolves a watch root to its absolute symlink-free
// form. Two spellings of the same directory canonicalize to the same
// string.
func CanonicalPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", fmt.Errorf("path is required")
	}
	absolute, err := filepath.Abs(pathValue)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// Within reports whether child is parent itself or lies underneath it.
func Within(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
