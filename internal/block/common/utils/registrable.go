package utils

import (
	"net"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of a host name, e.g. "example.co.uk"
// for "www.example.co.uk". IP literals and names publicsuffix cannot reduce
// are returned in canonical form.
func RegistrableDomain(host string) string {
	host = CanonicalHostName(host)
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return apex
}
