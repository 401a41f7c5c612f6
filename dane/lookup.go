package dane

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/synqronlabs/mailtrust/dns"
)

// ErrInvalidHostname is wrapped by the KindDNSLookupFailed error returned for
// host names that cannot be queried.
var ErrInvalidHostname = errors.New("invalid host name")

// TLSALookup returns the usable TLSA records for hostname on the configured
// port and protocol. It returns nil, nil if the host has no TLSA records, in
// which case DANE does not apply.
//
// The answer must be DNSSEC-authenticated. Unauthenticated answers and
// bogus responses fail with KindDNSSECValidationFailed.
func (v *Verifier) TLSALookup(ctx context.Context, hostname string) (*TLSARecordSet, error) {
	return v.lookup(ctx, hostname, v.logger)
}

func normalizeHost(hostname string) (string, error) {
	host := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(hostname), "."))
	if host == "" || strings.ContainsAny(host, " \t@/:") {
		return "", &Error{Kind: KindDNSLookupFailed, Host: hostname, Err: ErrInvalidHostname}
	}
	if _, ok := mdns.IsDomainName(host); !ok {
		return "", &Error{Kind: KindDNSLookupFailed, Host: hostname, Err: ErrInvalidHostname}
	}
	return host, nil
}

func (v *Verifier) cacheKey(host string) string {
	return host + ":" + strconv.Itoa(v.config.Port)
}

// lookup is TLSALookup logging to log.
func (v *Verifier) lookup(ctx context.Context, hostname string, log *zap.Logger) (*TLSARecordSet, error) {
	host, err := normalizeHost(hostname)
	if err != nil {
		return nil, err
	}

	key := v.cacheKey(host)
	if v.records != nil {
		if set, ok := v.records.Get(key); ok {
			v.metrics.CacheHit()
			return set, nil
		}
		v.metrics.CacheMiss()
	}

	name := dns.TLSAName(v.config.Port, v.config.Protocol, host)
	lctx, cancel := context.WithTimeout(ctx, v.config.DNSTimeout)
	start := time.Now()
	res, err := v.resolver.LookupTLSA(lctx, name)
	cancel()
	elapsed := time.Since(start)
	v.metrics.AddDNSTime(elapsed)

	log.Debug("TLSA lookup",
		zap.String("name", name),
		zap.Int("records", len(res.Records)),
		zap.Bool("authentic", res.Authentic),
		zap.Duration("elapsed", elapsed),
		zap.Error(err))

	switch {
	case err == nil:
	case dns.IsNotFound(err):
		return nil, nil
	case dns.IsBogus(err):
		return nil, &Error{Kind: KindDNSSECValidationFailed, Host: name, Reason: "bogus response", Bogus: true, Err: err}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return nil, &Error{Kind: KindDNSLookupFailed, Host: name, Err: dns.ErrDNSTimeout}
	default:
		return nil, &Error{Kind: KindDNSLookupFailed, Host: name, Err: err}
	}

	if !res.Authentic {
		return nil, &Error{Kind: KindDNSSECValidationFailed, Host: name, Reason: "answer not DNSSEC authenticated"}
	}

	set := &TLSARecordSet{
		Hostname:        host,
		Name:            name,
		Port:            v.config.Port,
		DNSSECValidated: true,
		TTL:             res.TTL,
	}
	for _, r := range res.Records {
		if usable(r) {
			set.Records = append(set.Records, r)
		} else {
			set.Unusable++
		}
	}
	if len(set.Records) == 0 && set.Unusable > 0 {
		return nil, &Error{
			Kind:   KindInvalidTLSARecord,
			Host:   name,
			Reason: strconv.Itoa(set.Unusable) + " records, none usable",
		}
	}
	if len(set.Records) == 0 {
		return nil, nil
	}

	if v.records != nil {
		ttl := set.TTL
		if v.config.DNSCacheTTL > 0 {
			ttl = v.config.DNSCacheTTL
		}
		v.records.Put(key, set, ttl)
	}
	return set, nil
}

// usable reports whether r has known parameters and an association of the
// right length for its matching type (RFC 7672 section 2.2).
func usable(r dns.TLSA) bool {
	if r.Usage > dns.TLSAUsageDANEEE || r.Selector > dns.TLSASelectorSPKI {
		return false
	}
	switch r.MatchType {
	case dns.TLSAMatchTypeFull:
		return len(r.CertAssoc) > 0
	case dns.TLSAMatchTypeSHA256:
		return len(r.CertAssoc) == 32
	case dns.TLSAMatchTypeSHA512:
		return len(r.CertAssoc) == 64
	}
	return false
}
