// Package dkim holds the DKIM pieces the validators build on: the results
// an upstream DKIM verifier hands to DMARC evaluation, and the key records
// published at <selector>._domainkey.<domain>, which ARC signatures reuse.
//
// Verifying DKIM-Signature headers is not done here.
package dkim

import (
	"errors"
)

// Status represents the result of DKIM verification per RFC 8601.
type Status string

const (
	// StatusNone indicates the message was not signed.
	StatusNone Status = "none"

	// StatusPass indicates the signature was verified successfully.
	StatusPass Status = "pass"

	// StatusFail indicates the signature verification failed.
	StatusFail Status = "fail"

	// StatusPolicy indicates the signature is not accepted by policy.
	StatusPolicy Status = "policy"

	// StatusNeutral indicates the signature could not be processed.
	StatusNeutral Status = "neutral"

	// StatusTemperror indicates a temporary error (e.g., DNS timeout).
	StatusTemperror Status = "temperror"

	// StatusPermerror indicates a permanent error (e.g., invalid syntax).
	StatusPermerror Status = "permerror"
)

func (s Status) String() string { return string(s) }

// Result is the outcome of verifying one DKIM-Signature, as produced by the
// DKIM verifier.
type Result struct {
	// Domain is the signing domain (d=).
	Domain string

	// Selector is the key selector (s=).
	Selector string

	// Status is the verification result.
	Status Status

	// RecordAuthentic indicates if the key record was DNSSEC-validated.
	RecordAuthentic bool

	// Err contains any error that occurred during verification.
	Err error
}

var (
	ErrSyntax            = errors.New("dkim: syntax error in DKIM record")
	ErrNotDKIM           = errors.New("dkim: not a DKIM record")
	ErrKeyRevoked        = errors.New("dkim: key has been revoked")
	ErrWeakKey           = errors.New("dkim: key is too weak")
	ErrKeyNotForEmail    = errors.New("dkim: DNS record not allowed for email")
	ErrHashAlgNotAllowed = errors.New("dkim: hash algorithm not allowed by DNS record")
	ErrKeyTypeMismatch   = errors.New("dkim: key type does not match signature algorithm")
)
