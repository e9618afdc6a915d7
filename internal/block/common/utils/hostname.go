package utils

import "strings"

// CanonicalHostName returns a host name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot
func CanonicalHostName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// StripWWW removes a single leading "www." label from a canonical host name.
func StripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
