// Package security guards the files the tools write: output paths must stay
// inside the working or temp directory, and names derived from user input
// are reduced to a safe character set.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned for paths that resolve outside the allowed
// directories.
var ErrPathEscape = errors.New("path escapes allowed directory")

// canonical returns the absolute path with symlinks resolved. For paths
// that do not exist yet, the nearest existing parent is resolved and the
// rest appended, so a symlinked parent cannot smuggle a new file out.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, err := filepath.Rel(dir, abs)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// WithinDir reports an error unless path resolves to dir or below it.
func WithinDir(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	d, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscape, path, dir)
	}
	return nil
}

// WithinAnyDir reports an error unless path is within one of dirs.
func WithinAnyDir(path string, dirs []string) error {
	if len(dirs) == 0 {
		return errors.New("no allowed directories specified")
	}
	for _, d := range dirs {
		if WithinDir(path, d) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be within one of %v", ErrPathEscape, path, dirs)
}

// ValidateOutputPath accepts paths inside the temp directory or the
// current working directory.
func ValidateOutputPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	return WithinAnyDir(path, []string{os.TempDir(), cwd})
}

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-', folds
// every other run of characters into one underscore and caps the length at
// 128. Empty results become "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			underscore = false
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
