// Package dns provides the DNS lookups needed for message and transport
// authentication: TXT records for ARC keys and DMARC policies, and TLSA
// records for DANE.
//
// Lookups report whether the answer was DNSSEC validated (the AD flag set by
// a validating upstream resolver) and the smallest TTL of the answer section,
// which callers use as the lifetime of cached results.
package dns

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDNSNotFound is returned for NXDOMAIN or an empty answer.
	ErrDNSNotFound = errors.New("dns: record not found")
	// ErrDNSTimeout is returned when the lookup did not complete in time.
	ErrDNSTimeout = errors.New("dns: lookup timed out")
	// ErrDNSServFail is returned for SERVFAIL responses without DNSSEC.
	ErrDNSServFail = errors.New("dns: server failure")
	// ErrDNSBogus is returned for SERVFAIL responses to DNSSEC queries, which
	// validating resolvers use to signal bogus data.
	ErrDNSBogus = errors.New("dns: dnssec validation failed")
	// ErrDNSRefused is returned when the server refused the query.
	ErrDNSRefused = errors.New("dns: query refused")
	// ErrDNSUnsupported is returned by resolvers that cannot query a record type.
	ErrDNSUnsupported = errors.New("dns: record type not supported by resolver")
)

// Resolver looks up the records used by the validators. Implementations must
// honor context cancellation and deadlines.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) (Result[string], error)
	LookupTLSA(ctx context.Context, name string) (Result[TLSA], error)
}

// Result is the answer to a lookup.
type Result[T any] struct {
	Records []T

	// Authentic is true if the upstream resolver set the AD flag.
	Authentic bool

	// TTL is the smallest TTL in the answer. Zero if unknown.
	TTL time.Duration
}

// TLSAUsage is the certificate usage field of a TLSA record (RFC 6698 2.1.1).
type TLSAUsage uint8

const (
	TLSAUsagePKIXTA TLSAUsage = 0
	TLSAUsagePKIXEE TLSAUsage = 1
	TLSAUsageDANETA TLSAUsage = 2
	TLSAUsageDANEEE TLSAUsage = 3
)

func (u TLSAUsage) String() string {
	switch u {
	case TLSAUsagePKIXTA:
		return "pkix-ta"
	case TLSAUsagePKIXEE:
		return "pkix-ee"
	case TLSAUsageDANETA:
		return "dane-ta"
	case TLSAUsageDANEEE:
		return "dane-ee"
	}
	return fmt.Sprintf("usage(%d)", uint8(u))
}

// TLSASelector is the selector field of a TLSA record (RFC 6698 2.1.2).
type TLSASelector uint8

const (
	TLSASelectorCert TLSASelector = 0
	TLSASelectorSPKI TLSASelector = 1
)

func (s TLSASelector) String() string {
	switch s {
	case TLSASelectorCert:
		return "cert"
	case TLSASelectorSPKI:
		return "spki"
	}
	return fmt.Sprintf("selector(%d)", uint8(s))
}

// TLSAMatchType is the matching type field of a TLSA record (RFC 6698 2.1.3).
type TLSAMatchType uint8

const (
	TLSAMatchTypeFull   TLSAMatchType = 0
	TLSAMatchTypeSHA256 TLSAMatchType = 1
	TLSAMatchTypeSHA512 TLSAMatchType = 2
)

func (m TLSAMatchType) String() string {
	switch m {
	case TLSAMatchTypeFull:
		return "full"
	case TLSAMatchTypeSHA256:
		return "sha2-256"
	case TLSAMatchTypeSHA512:
		return "sha2-512"
	}
	return fmt.Sprintf("matchtype(%d)", uint8(m))
}

// TLSA is a parsed TLSA resource record.
type TLSA struct {
	Usage     TLSAUsage
	Selector  TLSASelector
	MatchType TLSAMatchType
	CertAssoc []byte
}

// String returns the record in presentation format, e.g. "3 1 1 ab12...".
func (r TLSA) String() string {
	return fmt.Sprintf("%d %d %d %x", r.Usage, r.Selector, r.MatchType, r.CertAssoc)
}

// TLSAName returns the owner name of TLSA records for a service, e.g.
// "_25._tcp.mx.example.com.".
func TLSAName(port int, protocol, host string) string {
	return fmt.Sprintf("_%d._%s.%s", port, protocol, ensureAbsolute(host))
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDNSNotFound)
}

// IsTimeout reports whether err is a lookup timeout, including an expired
// context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrDNSTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsServFail reports whether err is a server failure.
func IsServFail(err error) bool {
	return errors.Is(err, ErrDNSServFail)
}

// IsBogus reports whether err signals DNSSEC validation failure upstream.
func IsBogus(err error) bool {
	return errors.Is(err, ErrDNSBogus)
}

// IsTemporary reports whether a retry could succeed.
func IsTemporary(err error) bool {
	return IsTimeout(err) || IsServFail(err) || IsBogus(err) || errors.Is(err, ErrDNSRefused)
}
