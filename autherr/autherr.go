// Package autherr defines the errors shared by the message-scoped
// validators (ARC and DMARC).
//
// Each condition is its own type so callers can match it with errors.As and
// read its context without parsing strings. Temporary conditions should be
// answered with a 4xx (retry later) by the SMTP layer, permanent ones with
// PermError semantics.
package autherr

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Error is implemented by every error in this package.
type Error interface {
	error

	// Temporary reports whether retrying later could succeed.
	Temporary() bool

	// Fields returns structured logging context.
	Fields() []zap.Field
}

// IsTemporary reports whether any Error in err's chain is temporary.
func IsTemporary(err error) bool {
	var e Error
	return errors.As(err, &e) && e.Temporary()
}

// InvalidMessageFormat is returned for input that cannot be processed at all,
// such as an empty message or missing From domain.
type InvalidMessageFormat struct {
	Reason    string
	Component string
}

func (e *InvalidMessageFormat) Error() string {
	return fmt.Sprintf("invalid message format in %s: %s", e.Component, e.Reason)
}

func (e *InvalidMessageFormat) Temporary() bool { return false }

func (e *InvalidMessageFormat) Fields() []zap.Field {
	return []zap.Field{zap.String("component", e.Component), zap.String("reason", e.Reason)}
}

// DNSLookupFailed is returned when a DNS query failed for a reason other than
// the record not existing.
type DNSLookupFailed struct {
	Domain         string
	Err            error
	DNSSECRequired bool
}

func (e *DNSLookupFailed) Error() string {
	return fmt.Sprintf("dns lookup failed for %s: %v", e.Domain, e.Err)
}

func (e *DNSLookupFailed) Unwrap() error { return e.Err }

func (e *DNSLookupFailed) Temporary() bool { return true }

func (e *DNSLookupFailed) Fields() []zap.Field {
	return []zap.Field{zap.String("domain", e.Domain), zap.Error(e.Err), zap.Bool("dnssec_required", e.DNSSECRequired)}
}

// DNSSECValidationFailed is returned when an answer that must be DNSSEC
// signed was not, or was bogus.
type DNSSECValidationFailed struct {
	Domain string
	Reason string

	// Bogus is set when the upstream resolver rejected the signatures, which
	// may be transient. Unsigned answers are permanent.
	Bogus bool
}

func (e *DNSSECValidationFailed) Error() string {
	return fmt.Sprintf("dnssec validation failed for %s: %s", e.Domain, e.Reason)
}

func (e *DNSSECValidationFailed) Temporary() bool { return e.Bogus }

func (e *DNSSECValidationFailed) Fields() []zap.Field {
	return []zap.Field{zap.String("domain", e.Domain), zap.String("reason", e.Reason), zap.Bool("bogus", e.Bogus)}
}

// NoRecordsFound is returned when a required record does not exist.
type NoRecordsFound struct {
	Domain string
}

func (e *NoRecordsFound) Error() string {
	return fmt.Sprintf("no records found for %s", e.Domain)
}

func (e *NoRecordsFound) Temporary() bool { return false }

func (e *NoRecordsFound) Fields() []zap.Field {
	return []zap.Field{zap.String("domain", e.Domain)}
}

// InvalidRecord is returned for a record or header that does not parse.
type InvalidRecord struct {
	Domain string
	Reason string
	Raw    string
}

func (e *InvalidRecord) Error() string {
	return fmt.Sprintf("invalid record for %s: %s", e.Domain, e.Reason)
}

func (e *InvalidRecord) Temporary() bool { return false }

func (e *InvalidRecord) Fields() []zap.Field {
	return []zap.Field{zap.String("domain", e.Domain), zap.String("reason", e.Reason), zap.String("raw", e.Raw)}
}

// VerificationFailed is returned when signatures were checked and did not
// verify.
type VerificationFailed struct {
	Subject string
	Reason  string
	Checked int
	Failed  int
}

func (e *VerificationFailed) Error() string {
	return fmt.Sprintf("verification of %s failed: %s (%d of %d failed)", e.Subject, e.Reason, e.Failed, e.Checked)
}

func (e *VerificationFailed) Temporary() bool { return false }

func (e *VerificationFailed) Fields() []zap.Field {
	return []zap.Field{
		zap.String("subject", e.Subject),
		zap.String("reason", e.Reason),
		zap.Int("checked", e.Checked),
		zap.Int("failed", e.Failed),
	}
}

// OperationTimeout is returned when an operation exceeded its time limit.
type OperationTimeout struct {
	Operation string
	Limit     time.Duration
	Elapsed   time.Duration
}

func (e *OperationTimeout) Error() string {
	return fmt.Sprintf("%s timed out after %s (limit %s)", e.Operation, e.Elapsed.Round(time.Millisecond), e.Limit)
}

func (e *OperationTimeout) Temporary() bool { return true }

func (e *OperationTimeout) Fields() []zap.Field {
	return []zap.Field{zap.String("operation", e.Operation), zap.Duration("limit", e.Limit), zap.Duration("elapsed", e.Elapsed)}
}

// CacheError is returned when a cache operation failed.
type CacheError struct {
	Operation string
	Err       error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Operation, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Temporary() bool { return true }

func (e *CacheError) Fields() []zap.Field {
	return []zap.Field{zap.String("operation", e.Operation), zap.Error(e.Err)}
}
