package dmarc

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// URI is a destination address for DMARC aggregate or failure reports.
type URI struct {
	// Address is the full URI, typically starting with "mailto:".
	Address string

	// MaxSize is the optional maximum report size.
	MaxSize uint64

	// Unit is the size unit: "" (bytes), "k", "m", "g", or "t".
	// Units are powers of 2 (k = 2^10, etc.).
	Unit string
}

// String returns the URI formatted for a DMARC record.
func (u URI) String() string {
	s := strings.NewReplacer(",", "%2C", "!", "%21").Replace(u.Address)
	if u.MaxSize > 0 || u.Unit != "" {
		s += "!" + strconv.FormatUint(u.MaxSize, 10) + u.Unit
	}
	return s
}

// Record is a parsed DMARC DNS TXT record.
//
// Example record:
//
//	v=DMARC1; p=reject; rua=mailto:dmarc@example.com
type Record struct {
	// Version must be "DMARC1".
	Version string

	// Policy is the requested policy for messages that fail DMARC. Required.
	Policy Policy

	// SubdomainPolicy is the policy for subdomains. If empty, Policy applies.
	SubdomainPolicy Policy

	// AggregateReportAddresses are URIs for aggregate reports (rua tag).
	AggregateReportAddresses []URI

	// FailureReportAddresses are URIs for failure reports (ruf tag).
	FailureReportAddresses []URI

	// ADKIM is the DKIM alignment mode. Default is relaxed.
	ADKIM Align

	// ASPF is the SPF alignment mode. Default is relaxed.
	ASPF Align

	// AggregateReportingInterval is the reporting interval in seconds.
	// Default is 86400 (1 day).
	AggregateReportingInterval int

	// FailureReportingOptions control when failure reports are sent:
	//	"0" if all mechanisms fail to produce an aligned pass (default)
	//	"1" if any mechanism fails to produce an aligned pass
	//	"d" if a DKIM signature failed to verify
	//	"s" if SPF failed
	FailureReportingOptions []string

	// ReportingFormat is the format for failure reports. Default is "afrf".
	ReportingFormat []string

	// Percentage is the percentage of messages to which the policy applies.
	// Between 0 and 100, default is 100.
	Percentage int
}

// DefaultRecord holds the default values for a DMARC record.
var DefaultRecord = Record{
	Version:                    "DMARC1",
	ADKIM:                      AlignRelaxed,
	ASPF:                       AlignRelaxed,
	AggregateReportingInterval: 86400,
	FailureReportingOptions:    []string{"0"},
	ReportingFormat:            []string{"afrf"},
	Percentage:                 100,
}

// String returns the record formatted for a DNS TXT record. Tags holding
// default values are left out, so parsing the result yields an equal
// record.
func (r Record) String() string {
	tags := []string{"v=" + r.Version}
	add := func(do bool, tag, value string) {
		if do {
			tags = append(tags, tag+"="+value)
		}
	}

	add(r.Policy != PolicyEmpty, "p", string(r.Policy))
	add(r.SubdomainPolicy != PolicyEmpty, "sp", string(r.SubdomainPolicy))
	add(len(r.AggregateReportAddresses) > 0, "rua", joinURIs(r.AggregateReportAddresses))
	add(len(r.FailureReportAddresses) > 0, "ruf", joinURIs(r.FailureReportAddresses))
	add(r.ADKIM == AlignStrict, "adkim", string(r.ADKIM))
	add(r.ASPF == AlignStrict, "aspf", string(r.ASPF))
	add(r.AggregateReportingInterval != DefaultRecord.AggregateReportingInterval, "ri", strconv.Itoa(r.AggregateReportingInterval))
	add(len(r.FailureReportingOptions) > 0 && !slices.Equal(r.FailureReportingOptions, DefaultRecord.FailureReportingOptions),
		"fo", strings.Join(r.FailureReportingOptions, ":"))
	add(len(r.ReportingFormat) > 0 && !slices.Equal(r.ReportingFormat, DefaultRecord.ReportingFormat),
		"rf", strings.Join(r.ReportingFormat, ":"))
	add(r.Percentage != DefaultRecord.Percentage, "pct", strconv.Itoa(r.Percentage))

	return strings.Join(tags, "; ")
}

func joinURIs(l []URI) string {
	s := make([]string, len(l))
	for i, u := range l {
		s[i] = u.String()
	}
	return strings.Join(s, ",")
}

// EffectivePolicy returns the effective policy for the given domain.
// If the domain is a subdomain and SubdomainPolicy is set, it returns
// SubdomainPolicy. Otherwise, it returns Policy.
func (r *Record) EffectivePolicy(isSubdomain bool) Policy {
	if isSubdomain && r.SubdomainPolicy != PolicyEmpty {
		return r.SubdomainPolicy
	}
	return r.Policy
}

// ReportInterval returns ri= as a duration.
func (r *Record) ReportInterval() time.Duration {
	return time.Duration(r.AggregateReportingInterval) * time.Second
}

// WantsFailureReport reports whether fo= asks for a failure report for a
// message that failed DMARC. dkimFailed is true if any DKIM signature
// failed to verify, spfFailed if SPF failed.
func (r *Record) WantsFailureReport(dkimFailed, spfFailed bool) bool {
	opts := r.FailureReportingOptions
	if len(opts) == 0 {
		opts = DefaultRecord.FailureReportingOptions
	}
	for _, o := range opts {
		switch o {
		case "0", "1":
			return true
		case "d":
			if dkimFailed {
				return true
			}
		case "s":
			if spfFailed {
				return true
			}
		}
	}
	return false
}

func uriAddresses(l []URI) []string {
	s := make([]string, len(l))
	for i, u := range l {
		s[i] = u.Address
	}
	return s
}
