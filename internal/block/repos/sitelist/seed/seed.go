// Package seed loads a starting blocklist from a file and stores it when the
// "sites" key does not exist yet.
//
// YAML, JSON and TOML seed files hold a single "sites" key:
//
//	sites:
//	  - example.com
//	  - www.news.example
//
// Plain lists (.txt, .list) hold one domain per line, and hosts files
// (.hosts, or a file named "hosts") use the /etc/hosts layout.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
)

// LoadFile parses the seed file at path and returns its normalized entries
// in file order. Blank and non-string entries are skipped.
func LoadFile(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".txt" || ext == ".list":
		return loadText(path, parsePlainList)
	case ext == ".hosts" || strings.EqualFold(filepath.Base(path), "hosts"):
		return loadText(path, parseHostsFile)
	}

	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return nil, fmt.Errorf("unsupported seed file type: %s", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load seed file %s: %w", path, err)
	}
	if !k.Exists(domain.SitesKey) {
		return nil, fmt.Errorf("seed file %s missing '%s'", path, domain.SitesKey)
	}

	raw := toStringValues(k.Get(domain.SitesKey))
	sites := make([]string, 0, len(raw))
	for _, s := range raw {
		if e := domain.NormalizeEntry(s); e != "" {
			sites = append(sites, e)
		}
	}
	return sites, nil
}

func loadText(path string, parse func(r io.Reader, source string) ([]string, error)) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file %s: %w", path, err)
	}
	defer f.Close()
	sites, err := parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return sites, nil
}

// Apply stores sites when the store has no list yet. It reports whether the
// seed was written.
func Apply(ctx context.Context, store sitelist.Store, sites []string) (bool, error) {
	_, ok, err := store.Get(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := store.Set(ctx, sites); err != nil {
		return false, err
	}
	return true, nil
}

// toStringValues accepts a single string or a list and keeps the non-empty
// strings.
func toStringValues(val any) []string {
	switch v := val.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
