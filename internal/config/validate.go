package config

import (
	"fmt"
	"strings"
)

// MissingError reports required credentials that are absent for a platform.
type MissingError struct {
	Platform string
	Keys     []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("config: %s: missing %s", e.Platform, strings.Join(e.Keys, ", "))
}

// Field pairs a setting name with its value for Require.
type Field struct {
	Name  string
	Value string
}

// Require returns a *MissingError naming every blank field, or nil.
func Require(platform string, fields ...Field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingError{Platform: platform, Keys: missing}
}
