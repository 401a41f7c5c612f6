package dane

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Kind classifies a DANE failure.
type Kind int

const (
	KindDNSLookupFailed Kind = iota + 1
	KindDNSSECValidationFailed
	KindNoTLSARecords
	KindInvalidTLSARecord
	KindCertificateVerificationFailed
	KindNoCertificatesProvided
	KindCertificateProcessingError
	KindOperationTimeout
	KindCacheError
)

func (k Kind) String() string {
	switch k {
	case KindDNSLookupFailed:
		return "dns lookup failed"
	case KindDNSSECValidationFailed:
		return "dnssec validation failed"
	case KindNoTLSARecords:
		return "no tlsa records"
	case KindInvalidTLSARecord:
		return "invalid tlsa record"
	case KindCertificateVerificationFailed:
		return "certificate verification failed"
	case KindNoCertificatesProvided:
		return "no certificates provided"
	case KindCertificateProcessingError:
		return "certificate processing error"
	case KindOperationTimeout:
		return "operation timeout"
	case KindCacheError:
		return "cache error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for matching a Kind with errors.Is.
var (
	ErrDNSLookupFailed               = &Error{Kind: KindDNSLookupFailed}
	ErrDNSSECValidationFailed        = &Error{Kind: KindDNSSECValidationFailed}
	ErrNoTLSARecords                 = &Error{Kind: KindNoTLSARecords}
	ErrInvalidTLSARecord             = &Error{Kind: KindInvalidTLSARecord}
	ErrCertificateVerificationFailed = &Error{Kind: KindCertificateVerificationFailed}
	ErrNoCertificatesProvided        = &Error{Kind: KindNoCertificatesProvided}
	ErrCertificateProcessingError    = &Error{Kind: KindCertificateProcessingError}
	ErrOperationTimeout              = &Error{Kind: KindOperationTimeout}
	ErrCacheError                    = &Error{Kind: KindCacheError}
)

// Error is a DANE verification failure for one connection.
type Error struct {
	Kind Kind

	// Host is the TLSA owner name or host name concerned.
	Host string

	Reason string

	// Bogus is set for DNSSEC failures signalled by the upstream resolver,
	// which may clear up on retry.
	Bogus bool

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	s := "dane: " + e.Kind.String()
	if e.Host != "" {
		s += " for " + e.Host
	}
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match any Error of the same Kind as a sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Temporary reports whether retrying later could succeed.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case KindDNSLookupFailed:
		return !errors.Is(e.Err, ErrInvalidHostname)
	case KindOperationTimeout, KindCacheError:
		return true
	case KindDNSSECValidationFailed:
		return e.Bogus
	}
	return false
}

// Fields returns structured logging context.
func (e *Error) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Stringer("kind", e.Kind),
		zap.Bool("temporary", e.Temporary()),
	}
	if e.Host != "" {
		fields = append(fields, zap.String("host", e.Host))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	return fields
}
