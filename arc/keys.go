package arc

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/synqronlabs/mailtrust/autherr"
	"github.com/synqronlabs/mailtrust/dkim"
	"github.com/synqronlabs/mailtrust/dns"
)

// key is a usable public key fetched from DNS.
type key struct {
	record *dkim.Record
	ttl    time.Duration
}

// keyName returns the DNS name of a signing key.
func keyName(selector, domain string) string {
	return strings.ToLower(selector) + "._domainkey." + strings.ToLower(strings.TrimSuffix(domain, "."))
}

// lookupKey returns the key record for selector and domain, from the key
// cache when possible. DNS failures are returned as *autherr.DNSLookupFailed,
// missing and unusable records as *autherr.NoRecordsFound and
// *autherr.InvalidRecord.
func (run *validation) lookupKey(ctx context.Context, selector, domain string) (*key, error) {
	v := run.v
	if isTLD(domain) {
		return nil, &autherr.InvalidRecord{Domain: domain, Reason: ErrTLD.Error()}
	}

	name := keyName(selector, domain)
	if v.keys != nil {
		if k, ok := v.keys.Get(name); ok {
			v.metrics.CacheHit()
			run.observeTTL(k.ttl)
			return k, nil
		}
		v.metrics.CacheMiss()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.config.DNSTimeout)
	defer cancel()

	start := time.Now()
	res, err := v.resolver.LookupTXT(lookupCtx, name)
	elapsed := time.Since(start)
	v.metrics.AddDNSTime(elapsed)
	run.dnsTime.Add(int64(elapsed))

	if err != nil {
		if dns.IsNotFound(err) {
			return nil, &autherr.NoRecordsFound{Domain: name}
		}
		if errors.Is(err, context.DeadlineExceeded) && lookupCtx.Err() != nil {
			err = fmt.Errorf("%w: %w", dns.ErrDNSTimeout, err)
		}
		return nil, &autherr.DNSLookupFailed{Domain: name, Err: err}
	}

	var firstErr error
	for _, txt := range res.Records {
		rec, isDKIM, err := dkim.ParseRecord(txt)
		if !isDKIM {
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = &autherr.InvalidRecord{Domain: name, Reason: err.Error(), Raw: txt}
			}
			continue
		}

		k := &key{record: rec, ttl: v.cacheTTL(res.TTL)}
		if v.keys != nil {
			v.keys.Put(name, k, k.ttl)
		}
		run.observeTTL(k.ttl)
		v.logger.Debug("fetched ARC key",
			zap.String("session_id", run.sessionID),
			zap.String("name", name),
			zap.Bool("authentic", res.Authentic),
			zap.Duration("ttl", res.TTL))
		return k, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, &autherr.NoRecordsFound{Domain: name}
}

// cacheTTL returns the configured cache lifetime, or the record TTL when none
// is configured.
func (v *Validator) cacheTTL(recordTTL time.Duration) time.Duration {
	if v.config.DNSCacheTTL > 0 {
		return v.config.DNSCacheTTL
	}
	return recordTTL
}

// checkKey verifies the record may verify a signature made with algorithm.
func (v *Validator) checkKey(k *key, algorithm string) error {
	sign, hash := splitAlgorithm(algorithm)
	if _, ok := getHash(hash); !ok {
		return fmt.Errorf("%w: %s", ErrHashUnknown, hash)
	}
	switch sign {
	case "rsa", "ed25519":
	default:
		return fmt.Errorf("%w: %s", ErrAlgorithmUnknown, algorithm)
	}
	if err := k.record.CheckKey(sign, hash, v.config.MinRSAKeyBits); err != nil {
		return fmt.Errorf("%w: %w", ErrKey, err)
	}
	return nil
}

// verifyWithKey verifies signature over the digest data.
func verifyWithKey(pub any, hash crypto.Hash, data, signature []byte) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(k, hash, data, signature)
	case ed25519.PublicKey:
		if !ed25519.Verify(k, data, signature) {
			return ErrSignatureFailed
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrAlgorithmUnknown, pub)
	}
}

// isTLD reports whether domain is a public suffix, under which no one may
// publish signing keys.
func isTLD(domain string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if domain == "" {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}
