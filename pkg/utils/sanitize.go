package utils

import (
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// SanitizeName returns a filesystem-safe version of a name, used when
// embedding identifiers in file names. Path separators and parent
// directory references are stripped; anything outside [a-zA-Z0-9-_]
// is dropped.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	name = unsafeNameChars.ReplaceAllString(name, "")

	if name == "" {
		return "unnamed"
	}
	return name
}
