// Package spf defines the SPF results an upstream SPF evaluator hands to
// DMARC evaluation (RFC 7208 Section 2.6). Evaluating SPF records is not
// done here.
package spf

// Status is the result of SPF verification.
type Status string

const (
	// StatusNone indicates no SPF record was found or no domain to check.
	StatusNone Status = "none"

	// StatusNeutral indicates the domain owner has explicitly stated nothing about the IP.
	StatusNeutral Status = "neutral"

	// StatusPass indicates the IP is authorized to send mail for the domain.
	StatusPass Status = "pass"

	// StatusFail indicates the IP is explicitly not authorized.
	StatusFail Status = "fail"

	// StatusSoftfail indicates weak statement that IP is probably not authorized.
	StatusSoftfail Status = "softfail"

	// StatusTemperror indicates a temporary error (e.g., DNS timeout).
	StatusTemperror Status = "temperror"

	// StatusPermerror indicates a permanent error (e.g., invalid SPF record).
	StatusPermerror Status = "permerror"
)

func (s Status) String() string { return string(s) }

// Identity is the identity an SPF check was made for.
type Identity string

const (
	IdentityMailFrom Identity = "mailfrom"
	IdentityHelo     Identity = "helo"
)

// Result is the outcome of one SPF check.
type Result struct {
	// Domain is the domain that was checked: the MAIL FROM domain, or the
	// HELO name when MAIL FROM was empty.
	Domain string

	Identity Identity
	Status   Status
}
