package dmarc

import (
	"errors"
	"time"
)

// DMARC lookup and evaluation errors.
var (
	// ErrNoRecord indicates no DMARC DNS record was found.
	ErrNoRecord = errors.New("dmarc: no DMARC DNS record found")

	// ErrMultipleRecords indicates multiple DMARC DNS records were found.
	// Per RFC 7489, this must be treated as if the domain does not implement DMARC.
	ErrMultipleRecords = errors.New("dmarc: multiple DMARC DNS records found")

	// ErrSyntax indicates the DMARC record has invalid syntax.
	ErrSyntax = errors.New("dmarc: malformed DMARC DNS record")

	// ErrDNS indicates a DNS lookup error occurred.
	ErrDNS = errors.New("dmarc: DNS lookup error")
)

// Status is the result of DMARC policy evaluation, for use in an
// Authentication-Results header per RFC 8601.
type Status string

const (
	// StatusNone indicates no DMARC TXT DNS record was found.
	StatusNone Status = "none"

	// StatusPass indicates SPF and/or DKIM passed with identifier alignment.
	StatusPass Status = "pass"

	// StatusFail indicates either both SPF and DKIM failed or the identifier
	// did not align with a pass.
	StatusFail Status = "fail"

	// StatusTemperror indicates a temporary error, typically a DNS lookup failure.
	// A later attempt may result in a conclusion.
	StatusTemperror Status = "temperror"

	// StatusPermerror indicates a permanent error, typically a malformed DMARC
	// DNS record.
	StatusPermerror Status = "permerror"
)

func (s Status) String() string { return string(s) }

// Policy determines how receivers should handle messages that fail DMARC.
type Policy string

const (
	// PolicyEmpty is only for the optional SubdomainPolicy field.
	PolicyEmpty Policy = ""

	// PolicyNone requests no specific action be taken for failing messages.
	PolicyNone Policy = "none"

	// PolicyQuarantine requests that failing messages be treated as suspicious.
	PolicyQuarantine Policy = "quarantine"

	// PolicyReject requests that failing messages be rejected.
	PolicyReject Policy = "reject"
)

func (p Policy) String() string { return string(p) }

// Align specifies the alignment mode for identifier comparison.
type Align string

const (
	// AlignRelaxed requires the organizational domains to match.
	// This is the default mode.
	AlignRelaxed Align = "r"

	// AlignStrict requires exact domain matches.
	AlignStrict Align = "s"
)

func (a Align) String() string {
	if a == AlignStrict {
		return "strict"
	}
	return "relaxed"
}

// Disposition is the action recommended for a message.
type Disposition string

const (
	DispositionAccept     Disposition = "accept"
	DispositionQuarantine Disposition = "quarantine"
	DispositionReject     Disposition = "reject"
)

func (d Disposition) String() string { return string(d) }

// dispositionFor returns the disposition a policy calls for on failure.
func dispositionFor(p Policy) Disposition {
	switch p {
	case PolicyReject:
		return DispositionReject
	case PolicyQuarantine:
		return DispositionQuarantine
	}
	return DispositionAccept
}

// DKIMAlignment is the alignment check of one DKIM result.
type DKIMAlignment struct {
	// Domain is the signing domain (d=).
	Domain     string
	Selector   string
	FromDomain string
	Mode       Align

	// Passed is true if the signature verified.
	Passed bool

	// Aligned is true if Domain aligns with FromDomain under Mode.
	Aligned bool
}

// SPFAlignment is the alignment check of the SPF result.
type SPFAlignment struct {
	// Domain is the identity SPF checked.
	Domain     string
	FromDomain string
	Mode       Align
	Passed     bool
	Aligned    bool
}

// EvaluationResult is the outcome of evaluating a message against the DMARC
// policy of its From domain.
type EvaluationResult struct {
	Result Status

	// Domain is the From domain that was evaluated.
	Domain string

	// RecordDomain is where the record was found: Domain or its
	// organizational domain.
	RecordDomain string

	// Policy is the policy applied after pct= sampling. It is PolicyNone
	// unless the message failed and was sampled.
	Policy Policy

	DKIMAligned bool
	SPFAligned  bool
	Disposition Disposition

	// Record is the parsed record and RawRecord its TXT text, if one was
	// found.
	Record          *Record
	RawRecord       string
	RecordAuthentic bool

	// Sampled reports whether the message fell inside the pct= sample.
	Sampled bool

	DKIM []DKIMAlignment
	SPF  *SPFAlignment

	DNSLookupTime        time.Duration
	PolicyEvaluationTime time.Duration
	TotalEvaluationTime  time.Duration

	// Err explains temperror and permerror results.
	Err error
}
