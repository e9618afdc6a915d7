package seed

import (
	"bufio"
	"io"
	"strings"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// parsePlainList reads one domain per line. '#' starts a comment, and a
// leading "*." or "." is dropped since every entry covers its subdomains.
// Invalid names are skipped; duplicates keep their first position.
func parsePlainList(r io.Reader, source string) ([]string, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	out := make([]string, 0, 64)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}
		raw := strings.TrimSpace(stripInlineComment(line))
		raw = strings.TrimPrefix(raw, "*.")
		raw = strings.TrimPrefix(raw, ".")

		name := domain.NormalizeEntry(raw)
		if !isValidHostName(name) {
			log.Debug(map[string]any{"source": source, "line": lineNum, "raw": raw}, "seed_skip_invalid")
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	log.Debug(map[string]any{"source": source, "count": len(out)}, "seed_plain_parsed")
	return out, nil
}

// parseHostsFile reads /etc/hosts-style lines. The address column is
// ignored and every host name after it becomes an entry. Wildcards are not
// valid hosts syntax and are skipped.
func parseHostsFile(r io.Reader, source string) ([]string, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	out := make([]string, 0, 64)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}
		fields := strings.Fields(stripInlineComment(line))
		if len(fields) < 2 {
			continue
		}
		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				log.Debug(map[string]any{"source": source, "line": lineNum, "raw": raw}, "seed_skip_invalid")
				continue
			}
			name := domain.NormalizeEntry(raw)
			if !isValidHostName(name) {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	log.Debug(map[string]any{"source": source, "count": len(out)}, "seed_hosts_parsed")
	return out, nil
}

func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports blank lines and whole-line comments.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// isValidHostName requires at least two labels of 1..63 characters, at most
// 253 characters overall, and letters, digits, '-' or '_' only.
func isValidHostName(name string) bool {
	if len(name) == 0 || len(name) > 253 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}
