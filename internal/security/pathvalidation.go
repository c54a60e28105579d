package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a name resolves outside its base directory.
var ErrPathEscape = errors.New("path escapes base directory")

// ValidateName checks that name is a relative path that stays within
// whatever directory it is later joined to. The check is lexical so it
// works for in-memory filesystems as well as the real one.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %s is absolute", ErrPathEscape, name)
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	if clean == "." {
		return fmt.Errorf("%s does not name a file", name)
	}
	return nil
}

// JoinWithin joins name onto dir after validating it.
func JoinWithin(dir, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
