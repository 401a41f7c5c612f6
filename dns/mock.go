package dns

import (
	"context"
	"slices"
	"time"
)

// MockResolver is a Resolver used for testing.
// Set DNS records in the fields, which map FQDNs (with trailing dot) to values.
type MockResolver struct {
	TXT  map[string][]string
	TLSA map[string][]TLSA

	// TTL is returned with every successful answer.
	TTL time.Duration

	// Fail contains records that will return a temporary error (SERVFAIL).
	// Format: "type name", e.g. "txt example.com." where type is lowercase.
	Fail []string

	// Timeout contains records that will return ErrDNSTimeout.
	Timeout []string

	// Bogus contains records that will return ErrDNSBogus.
	Bogus []string

	// AllAuthentic sets the default value for Authentic in responses.
	// Overridden by Authentic and Inauthentic lists.
	AllAuthentic bool

	// Authentic contains records that will have Authentic=true.
	Authentic []string

	// Inauthentic contains records that will have Authentic=false.
	Inauthentic []string
}

var _ Resolver = MockResolver{}

// mockReq represents a mock DNS request.
type mockReq struct {
	Type string // "txt" or "tlsa"
	Name string // FQDN with trailing dot
}

func (mr mockReq) String() string {
	return mr.Type + " " + mr.Name
}

// ensureFQDN ensures the name ends with a dot.
func ensureFQDN(name string) string {
	if len(name) == 0 || name[len(name)-1] != '.' {
		return name + "."
	}
	return name
}

// check applies the configured failures and returns the authentication status.
func (r MockResolver) check(ctx context.Context, mr mockReq) (bool, error) {
	authentic := r.AllAuthentic

	if err := ctx.Err(); err != nil {
		return authentic, contextError(err)
	}

	key := mr.String()
	switch {
	case slices.Contains(r.Fail, key):
		return authentic, ErrDNSServFail
	case slices.Contains(r.Timeout, key):
		return authentic, ErrDNSTimeout
	case slices.Contains(r.Bogus, key):
		return false, ErrDNSBogus
	}

	if slices.Contains(r.Authentic, key) {
		authentic = true
	}
	if slices.Contains(r.Inauthentic, key) {
		authentic = false
	}
	return authentic, nil
}

// LookupTXT returns TXT records for the given name.
func (r MockResolver) LookupTXT(ctx context.Context, name string) (Result[string], error) {
	fqdn := ensureFQDN(name)
	authentic, err := r.check(ctx, mockReq{"txt", fqdn})
	if err != nil {
		return Result[string]{Authentic: authentic}, err
	}

	records, ok := r.TXT[fqdn]
	if !ok || len(records) == 0 {
		return Result[string]{Authentic: authentic}, ErrDNSNotFound
	}

	return Result[string]{Records: records, Authentic: authentic, TTL: r.TTL}, nil
}

// LookupTLSA returns TLSA records for the given name.
func (r MockResolver) LookupTLSA(ctx context.Context, name string) (Result[TLSA], error) {
	fqdn := ensureFQDN(name)
	authentic, err := r.check(ctx, mockReq{"tlsa", fqdn})
	if err != nil {
		return Result[TLSA]{Authentic: authentic}, err
	}

	records, ok := r.TLSA[fqdn]
	if !ok || len(records) == 0 {
		return Result[TLSA]{Authentic: authentic}, ErrDNSNotFound
	}

	return Result[TLSA]{Records: records, Authentic: authentic, TTL: r.TTL}, nil
}
