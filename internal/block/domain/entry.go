package domain

import "github.com/haukened/rr-block/internal/block/common/utils"

// SitesKey is the storage key the blocklist is persisted under.
const SitesKey = "sites"

// NormalizeEntry turns a host name into a BlockEntry: canonical form with
// one leading "www." label removed.
func NormalizeEntry(host string) string {
	return utils.StripWWW(utils.CanonicalHostName(host))
}
