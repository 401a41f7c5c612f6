package arc

import (
	"crypto"
	"errors"
	"time"
)

// Status is the overall result of ARC chain validation, written to
// Authentication-Results as arc=<status>.
type Status string

const (
	// StatusNone indicates no ARC headers are present.
	StatusNone Status = "none"

	// StatusPass indicates every ARC set validated.
	StatusPass Status = "pass"

	// StatusFail indicates a signature or the chain did not validate.
	StatusFail Status = "fail"

	// StatusTemperror indicates validation could not complete, e.g. a key
	// lookup timed out. Retrying later may succeed.
	StatusTemperror Status = "temperror"

	// StatusPermerror indicates the ARC headers are malformed or the chain is
	// structurally broken.
	StatusPermerror Status = "permerror"
)

func (s Status) String() string { return string(s) }

// ChainValidationStatus represents the chain validation status (cv= tag).
type ChainValidationStatus string

const (
	// ChainValidationNone indicates no prior ARC chain.
	ChainValidationNone ChainValidationStatus = "none"

	// ChainValidationPass indicates the prior ARC chain validated.
	ChainValidationPass ChainValidationStatus = "pass"

	// ChainValidationFail indicates the prior ARC chain failed validation.
	ChainValidationFail ChainValidationStatus = "fail"
)

// Algorithm represents an ARC signing algorithm.
type Algorithm string

const (
	AlgRSASHA256     Algorithm = "rsa-sha256"
	AlgRSASHA1       Algorithm = "rsa-sha1"
	AlgEd25519SHA256 Algorithm = "ed25519-sha256"
)

// Canonicalization represents header/body canonicalization algorithms.
type Canonicalization string

const (
	CanonSimple  Canonicalization = "simple"
	CanonRelaxed Canonicalization = "relaxed"
)

var (
	ErrInvalidChain            = errors.New("arc: invalid ARC chain structure")
	ErrMissingSet              = errors.New("arc: missing ARC set")
	ErrDuplicateSet            = errors.New("arc: duplicate ARC set instance")
	ErrGapInChain              = errors.New("arc: gap in ARC chain instance numbers")
	ErrInvalidInstance         = errors.New("arc: invalid instance number")
	ErrTooManySets             = errors.New("arc: too many ARC sets")
	ErrSealFailed              = errors.New("arc: seal verification failed")
	ErrMessageSignatureFailed  = errors.New("arc: message signature verification failed")
	ErrChainValidationMismatch = errors.New("arc: chain validation status mismatch")
	ErrDNS                     = errors.New("arc: DNS lookup error")
	ErrNoRecord                = errors.New("arc: no DNS record found")
	ErrSyntax                  = errors.New("arc: syntax error")
	ErrMissingTag              = errors.New("arc: missing required tag")
	ErrInvalidVersion          = errors.New("arc: invalid version")
	ErrAlgorithmUnknown        = errors.New("arc: unknown algorithm")
	ErrHashUnknown             = errors.New("arc: unknown hash algorithm")
	ErrKey                     = errors.New("arc: unusable key")
	ErrExpired                 = errors.New("arc: signature expired")
	ErrBodyHashMismatch        = errors.New("arc: body hash mismatch")
	ErrSignatureFailed         = errors.New("arc: signature verification failed")
	ErrTLD                     = errors.New("arc: domain is a top-level domain")
	ErrFromRequired            = errors.New("arc: From header must be signed")
)

// MaxInstance is the maximum allowed ARC instance number per RFC 8617.
const MaxInstance = 50

// ValidationResult is the outcome of validating the ARC chain of one message.
type ValidationResult struct {
	Result Status

	// ChainLength is the number of instances examined; it always equals
	// len(Elements).
	ChainLength int

	// ChainValid is true if the instances form the dense sequence
	// 1..HighestInstance with a complete set at each instance.
	ChainValid bool

	// Elements has one entry per instance, lowest instance first.
	Elements []ChainElement

	HighestInstance int

	// AllSignaturesValid is true if every AMS and every seal verified.
	AllSignaturesValid bool

	DNSLookupTime             time.Duration
	SignatureVerificationTime time.Duration
	TotalValidationTime       time.Duration

	// LimitsExceeded is set when the message carried more instances than the
	// configured maximum and the oldest were not examined.
	LimitsExceeded bool

	// Cached is set when the result was served from the result cache.
	Cached bool

	// Err is the most significant error behind a non-pass result.
	Err error
}

// ChainElement describes one ARC instance.
type ChainElement struct {
	Instance int

	HasAAR  bool
	HasAMS  bool
	HasSeal bool

	// SigningDomain and Selector identify the AMS key.
	SigningDomain string
	Selector      string

	// SealDomain and SealSelector identify the seal key.
	SealDomain   string
	SealSelector string

	// CV is the cv= value of the seal.
	CV ChainValidationStatus

	AMSVerified  bool
	SealVerified bool

	ValidationTime time.Duration

	// Error describes why the element did not verify; empty if it did.
	Error string
}

// clone returns a copy safe to hand to another caller.
func (r *ValidationResult) clone() *ValidationResult {
	c := *r
	c.Elements = append([]ChainElement(nil), r.Elements...)
	return &c
}

// getHash returns the crypto.Hash for a given hash algorithm name.
func getHash(name string) (crypto.Hash, bool) {
	switch name {
	case "sha256":
		return crypto.SHA256, true
	case "sha1":
		return crypto.SHA1, true
	default:
		return 0, false
	}
}
