package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// MatchPattern is a parsed URL match pattern of the form
// "<scheme>://<host><path>".
//
//	scheme - "*" (http or https) or one of http, https, ws, wss, ftp
//	host   - "*" (any host), "*.<name>" (name and all subdomains) or an exact name
//	path   - starts with "/", "*" matches any run of characters
type MatchPattern struct {
	Scheme string
	Host   string
	Path   string
	raw    string
}

var allowedSchemes = map[string]struct{}{
	"*": {}, "http": {}, "https": {}, "ws": {}, "wss": {}, "ftp": {},
}

// PatternForDomain derives the match pattern for a BlockEntry, covering the
// domain, every subdomain and every path under any scheme.
func PatternForDomain(entry string) string {
	return "*://*." + entry + "/*"
}

// PatternsForList derives one match pattern per entry, in list order.
func PatternsForList(entries []string) []string {
	patterns := make([]string, 0, len(entries))
	for _, e := range entries {
		patterns = append(patterns, PatternForDomain(e))
	}
	return patterns
}

// ParseMatchPattern validates and parses s. Failures wrap ErrInvalidPattern.
func ParseMatchPattern(s string) (MatchPattern, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return MatchPattern{}, fmt.Errorf("%w: %q: missing scheme separator", ErrInvalidPattern, s)
	}
	if _, ok := allowedSchemes[scheme]; !ok {
		return MatchPattern{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidPattern, s, scheme)
	}
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return MatchPattern{}, fmt.Errorf("%w: %q: missing path", ErrInvalidPattern, s)
	}
	host, path := rest[:slash], rest[slash:]
	if err := validatePatternHost(host); err != nil {
		return MatchPattern{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, s, err)
	}
	return MatchPattern{Scheme: scheme, Host: host, Path: path, raw: s}, nil
}

func validatePatternHost(host string) error {
	if host == "*" {
		return nil
	}
	name := strings.TrimPrefix(host, "*.")
	if name == "" {
		return fmt.Errorf("empty host")
	}
	if strings.ContainsAny(name, "*/:?#@ \t") {
		return fmt.Errorf("illegal character in host %q", host)
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") || strings.Contains(name, "..") {
		return fmt.Errorf("empty label in host %q", host)
	}
	return nil
}

// String returns the pattern as it was parsed.
func (p MatchPattern) String() string {
	if p.raw != "" {
		return p.raw
	}
	return p.Scheme + "://" + p.Host + p.Path
}

// MatchesScheme reports whether the URL scheme is covered.
func (p MatchPattern) MatchesScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	if p.Scheme == "*" {
		return scheme == "http" || scheme == "https"
	}
	return p.Scheme == scheme
}

// MatchesHost reports whether a canonical host name is covered.
func (p MatchPattern) MatchesHost(host string) bool {
	switch {
	case p.Host == "*":
		return true
	case strings.HasPrefix(p.Host, "*."):
		base := p.Host[2:]
		return host == base || strings.HasSuffix(host, "."+base)
	default:
		return host == p.Host
	}
}

// MatchesPath reports whether a path (with its query, if any) is covered.
func (p MatchPattern) MatchesPath(path string) bool {
	return globMatch(p.Path, path)
}

// Matches reports whether u is covered by the pattern.
func (p MatchPattern) Matches(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	return p.MatchesScheme(u.Scheme) && p.MatchesHost(host) && p.MatchesPath(requestPath(u))
}

func requestPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// globMatch matches s against a pattern where '*' stands for any run of
// characters, including none.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, last)
}
