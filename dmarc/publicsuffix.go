package dmarc

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(domain), ".")
}

// OrganizationalDomain returns the domain directly under the public suffix
// of domain, using the Public Suffix List as RFC 7489 section 3.2 requires:
//
//	sub.example.com   -> example.com
//	sub.example.co.uk -> example.co.uk
//
// A domain without a registrable part, such as "localhost" or a bare
// public suffix, is returned unchanged.
func OrganizationalDomain(domain string) string {
	domain = normalizeDomain(domain)
	if domain == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return domain
	}
	return etld1
}

// DomainsAligned reports whether two domains align: equal in strict mode,
// sharing an organizational domain in relaxed mode.
func DomainsAligned(domain1, domain2 string, alignment Align) bool {
	d1, d2 := normalizeDomain(domain1), normalizeDomain(domain2)
	if d1 == "" || d2 == "" {
		return false
	}
	if alignment == AlignStrict {
		return d1 == d2
	}
	return OrganizationalDomain(d1) == OrganizationalDomain(d2)
}

// IsSubdomain reports whether domain equals parent or is below it.
func IsSubdomain(domain, parent string) bool {
	d, p := normalizeDomain(domain), normalizeDomain(parent)
	return d == p || strings.HasSuffix(d, "."+p)
}
