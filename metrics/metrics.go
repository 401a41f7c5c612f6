// Package metrics holds the counters each validator maintains.
//
// Counters are updated with atomic operations and are only ever read for
// reporting; nothing in the validators branches on them.
package metrics

import (
	"sync/atomic"
	"time"
)

// Validator counts the work done by one validator.
type Validator struct {
	total      atomic.Uint64
	successful atomic.Uint64
	failed     atomic.Uint64
	dnsTime    atomic.Int64
	verifyTime atomic.Int64
	cacheHits  atomic.Uint64
	cacheMiss  atomic.Uint64
}

// NewValidator returns zeroed counters.
func NewValidator() *Validator {
	return &Validator{}
}

// RecordValidation counts one completed validation. Validations that
// produced no verdict (no records published) count towards the total only.
func (v *Validator) RecordValidation(outcome Outcome) {
	if v == nil {
		return
	}
	v.total.Add(1)
	switch outcome {
	case OutcomeSuccess:
		v.successful.Add(1)
	case OutcomeFailure:
		v.failed.Add(1)
	}
}

// Outcome classifies a validation for counting.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// AddDNSTime adds time spent waiting for DNS.
func (v *Validator) AddDNSTime(d time.Duration) {
	if v == nil {
		return
	}
	v.dnsTime.Add(int64(d))
}

// AddVerifyTime adds time spent on signature or certificate checks.
func (v *Validator) AddVerifyTime(d time.Duration) {
	if v == nil {
		return
	}
	v.verifyTime.Add(int64(d))
}

// CacheHit counts a cache lookup that returned a value.
func (v *Validator) CacheHit() {
	if v == nil {
		return
	}
	v.cacheHits.Add(1)
}

// CacheMiss counts a cache lookup that returned nothing.
func (v *Validator) CacheMiss() {
	if v == nil {
		return
	}
	v.cacheMiss.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalValidations      uint64
	SuccessfulValidations uint64
	FailedValidations     uint64
	DNSTime               time.Duration
	VerifyTime            time.Duration
	CacheHits             uint64
	CacheMisses           uint64
}

// Snapshot reads all counters. Counters are read individually, so a snapshot
// taken during validations may be off by the in-flight work.
func (v *Validator) Snapshot() Snapshot {
	if v == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalValidations:      v.total.Load(),
		SuccessfulValidations: v.successful.Load(),
		FailedValidations:     v.failed.Load(),
		DNSTime:               time.Duration(v.dnsTime.Load()),
		VerifyTime:            time.Duration(v.verifyTime.Load()),
		CacheHits:             v.cacheHits.Load(),
		CacheMisses:           v.cacheMiss.Load(),
	}
}

// SuccessRate returns successful validations as a percentage of all
// validations, or 0 if there were none.
func (s Snapshot) SuccessRate() float64 {
	if s.TotalValidations == 0 {
		return 0
	}
	return float64(s.SuccessfulValidations) / float64(s.TotalValidations) * 100
}

// CacheHitRate returns cache hits as a percentage of cache lookups, or 0 if
// there were none.
func (s Snapshot) CacheHitRate() float64 {
	lookups := s.CacheHits + s.CacheMisses
	if lookups == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(lookups) * 100
}
