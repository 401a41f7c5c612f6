package dns

import (
	"context"
	"errors"
	"net"
	"strings"
)

// StdResolver implements the Resolver interface using the standard library net package.
// It never reports DNSSEC validation (Authentic is always false) and cannot
// query TLSA records, so DANE verification through it always fails closed.
// Use DNSResolver for DNSSEC support.
type StdResolver struct {
	resolver *net.Resolver
}

var _ Resolver = (*StdResolver)(nil)

// NewStdResolver creates a resolver using the standard library.
func NewStdResolver() *StdResolver {
	return &StdResolver{
		resolver: net.DefaultResolver,
	}
}

// NewStdResolverWithDialer creates a resolver using a custom dialer.
// This allows configuring custom DNS servers while using the stdlib interface.
func NewStdResolverWithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) *StdResolver {
	return &StdResolver{
		resolver: &net.Resolver{
			PreferGo: true,
			Dial:     dial,
		},
	}
}

// LookupTXT retrieves TXT records using the standard library.
func (r *StdResolver) LookupTXT(ctx context.Context, name string) (Result[string], error) {
	name = strings.TrimSuffix(name, ".")

	records, err := r.resolver.LookupTXT(ctx, name)
	if err != nil {
		return Result[string]{}, convertError(err)
	}

	if len(records) == 0 {
		return Result[string]{}, ErrDNSNotFound
	}

	return Result[string]{Records: records}, nil
}

// LookupTLSA always fails: the standard library has no TLSA support.
func (r *StdResolver) LookupTLSA(ctx context.Context, name string) (Result[TLSA], error) {
	return Result[TLSA]{}, ErrDNSUnsupported
}

// convertError maps standard library DNS errors to the package sentinels.
func convertError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDNSTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return ErrDNSNotFound
		case dnsErr.IsTimeout:
			return ErrDNSTimeout
		case dnsErr.IsTemporary:
			return ErrDNSServFail
		}
	}

	return err
}
