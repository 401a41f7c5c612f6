package dmarc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/synqronlabs/mailtrust/autherr"
	"github.com/synqronlabs/mailtrust/dns"
)

// lookupResult is the outcome of querying one _dmarc name. It is shared
// through the cache and must not be modified.
type lookupResult struct {
	// status is StatusNone for both a found record and no record, and
	// StatusTemperror or StatusPermerror on failure.
	status    Status
	record    *Record
	txt       string
	authentic bool
	err       error
}

func (lr *lookupResult) found() bool {
	return lr.record != nil
}

// policyDiscovery finds the DMARC record for from per RFC 7489 section
// 6.6.3: the From domain first, then its organizational domain if the From
// domain has no DMARC record at all. It returns the domain the answer
// belongs to.
func (run *evaluation) policyDiscovery(ctx context.Context, from string) (string, *lookupResult) {
	lr := run.lookup(ctx, from)
	if lr.status != StatusNone || lr.found() || errors.Is(lr.err, ErrMultipleRecords) {
		return from, lr
	}
	org := OrganizationalDomain(from)
	if org == from {
		return from, lr
	}
	return org, run.lookup(ctx, org)
}

// lookup queries _dmarc.<domain>, consulting the cache first. Found records
// are cached for their TTL, absent and unusable ones for NegativeCacheTTL.
// Temporary failures are not cached.
func (run *evaluation) lookup(ctx context.Context, domain string) *lookupResult {
	e := run.e
	name := "_dmarc." + domain + "."

	if e.records != nil {
		if lr, ok := e.records.Get(name); ok {
			e.metrics.CacheHit()
			return lr
		}
		e.metrics.CacheMiss()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.config.DNSTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.resolver.LookupTXT(lookupCtx, name)
	elapsed := time.Since(start)
	e.metrics.AddDNSTime(elapsed)
	run.dnsTime += elapsed

	lr, ttl := e.interpret(name, res, err)
	if lr.status == StatusTemperror && errors.Is(err, context.DeadlineExceeded) && lookupCtx.Err() != nil {
		lr.err = &autherr.DNSLookupFailed{Domain: name, Err: fmt.Errorf("%w: %w", dns.ErrDNSTimeout, err)}
	}
	run.log.Debug("looked up DMARC record",
		zap.String("name", name),
		zap.Bool("found", lr.found()),
		zap.Stringer("status", lr.status),
		zap.Bool("authentic", res.Authentic),
		zap.Duration("elapsed", elapsed))

	if e.records != nil && lr.status != StatusTemperror {
		e.records.Put(name, lr, ttl)
	}
	return lr
}

// interpret turns a TXT answer for name into a lookup result and the time
// it may be cached.
func (e *Evaluator) interpret(name string, res dns.Result[string], err error) (*lookupResult, time.Duration) {
	lr := &lookupResult{status: StatusNone, authentic: res.Authentic}
	if err != nil {
		if dns.IsNotFound(err) {
			lr.err = ErrNoRecord
			return lr, e.config.NegativeCacheTTL
		}
		lr.status = StatusTemperror
		lr.err = &autherr.DNSLookupFailed{Domain: name, Err: fmt.Errorf("%w: %w", ErrDNS, err)}
		return lr, 0
	}

	var record *Record
	var txt string
	for _, t := range res.Records {
		r, isDMARC, perr := ParseRecord(t)
		if !isDMARC {
			continue
		}
		if perr != nil {
			lr.status = StatusPermerror
			lr.err = &autherr.InvalidRecord{Domain: name, Reason: perr.Error(), Raw: t}
			return lr, e.config.NegativeCacheTTL
		}
		if record != nil {
			if e.config.StrictPolicy {
				lr.status = StatusPermerror
				lr.err = &autherr.InvalidRecord{Domain: name, Reason: ErrMultipleRecords.Error()}
			} else {
				lr.err = ErrMultipleRecords
			}
			return lr, e.config.NegativeCacheTTL
		}
		record, txt = r, t
	}
	if record == nil {
		lr.err = ErrNoRecord
		return lr, e.config.NegativeCacheTTL
	}

	lr.record = record
	lr.txt = txt
	ttl := res.TTL
	if e.config.DNSCacheTTL > 0 {
		ttl = e.config.DNSCacheTTL
	}
	return lr, ttl
}
