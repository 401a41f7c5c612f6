package dmarc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// parseErr is raised by the tag parsers and turned into an error by
// ParseRecord.
type parseErr string

func (e parseErr) Error() string {
	return string(e)
}

func fail(format string, args ...any) {
	panic(parseErr(fmt.Sprintf(format, args...)))
}

// ParseRecord parses a DMARC TXT record string.
//
// Tag names and keyword values are case-insensitive and returned in lower
// case. The version value "DMARC1" is case-sensitive. Unknown tags are
// ignored.
//
// isDMARC reports whether s starts with "v=DMARC1;", meaning it is meant to
// be a DMARC record even if it failed to parse.
func ParseRecord(s string) (record *Record, isDMARC bool, rerr error) {
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		if err, ok := x.(parseErr); ok {
			record = nil
			rerr = fmt.Errorf("%w: %s", ErrSyntax, err)
			return
		}
		panic(x)
	}()

	fields := strings.Split(s, ";")
	name, value, _ := strings.Cut(fields[0], "=")
	if !strings.EqualFold(trimWSP(name), "v") || trimWSP(value) != "DMARC1" {
		return nil, false, fmt.Errorf("%w: record must start with v=DMARC1", ErrSyntax)
	}
	if len(fields) < 2 {
		return nil, false, fmt.Errorf("%w: expected ; after version", ErrSyntax)
	}
	isDMARC = true

	r := DefaultRecord
	seen := map[string]bool{}
	for i, field := range fields[1:] {
		if trimWSP(field) == "" {
			if i == len(fields)-2 {
				// trailing semicolon
				break
			}
			fail("empty tag")
		}

		name, value, ok := strings.Cut(field, "=")
		if !ok {
			fail("missing = in %q", field)
		}
		tag := strings.ToLower(trimWSP(name))
		value = trimWSP(value)
		if !isWord(tag) {
			fail("bad tag name %q", name)
		}
		if seen[tag] {
			fail("duplicate tag %q", tag)
		}
		seen[tag] = true

		switch tag {
		case "p":
			if len(seen) != 1 {
				fail("p= must directly follow v=")
			}
			r.Policy = Policy(oneOf(value, "none", "quarantine", "reject"))
		case "sp":
			// Validated below, an invalid value is recoverable.
			r.SubdomainPolicy = Policy(keyword(value))
		case "rua":
			r.AggregateReportAddresses = uriList(value)
		case "ruf":
			r.FailureReportAddresses = uriList(value)
		case "adkim":
			r.ADKIM = Align(oneOf(value, "r", "s"))
		case "aspf":
			r.ASPF = Align(oneOf(value, "r", "s"))
		case "ri":
			r.AggregateReportingInterval = number(value)
		case "fo":
			r.FailureReportingOptions = nil
			for _, o := range strings.Split(value, ":") {
				r.FailureReportingOptions = append(r.FailureReportingOptions, oneOf(trimWSP(o), "0", "1", "d", "s"))
			}
		case "rf":
			r.ReportingFormat = nil
			for _, f := range strings.Split(value, ":") {
				r.ReportingFormat = append(r.ReportingFormat, keyword(trimWSP(f)))
			}
		case "pct":
			r.Percentage = number(value)
			if r.Percentage > 100 {
				fail("bad percentage %d", r.Percentage)
			}
		}
	}

	// RFC 7489 section 6.6.3: a missing or invalid p=, or an invalid sp=,
	// means p=none if a usable rua= is present.
	sp := r.SubdomainPolicy
	if !seen["p"] || sp != PolicyEmpty && sp != PolicyNone && sp != PolicyQuarantine && sp != PolicyReject {
		if len(r.AggregateReportAddresses) == 0 {
			fail("invalid (subdomain) policy and no aggregate reporting address")
		}
		r.Policy = PolicyNone
		r.SubdomainPolicy = PolicyEmpty
	}
	return &r, true, nil
}

func trimWSP(s string) string {
	return strings.Trim(s, " \t")
}

func oneOf(value string, l ...string) string {
	v := strings.ToLower(value)
	for _, s := range l {
		if v == s {
			return s
		}
	}
	fail("got %q, expected one of %v", value, l)
	panic("not reached")
}

func number(value string) int {
	if value == "" {
		fail("missing number")
	}
	for i := 0; i < len(value); i++ {
		if !isdigit(value[i]) {
			fail("bad number %q", value)
		}
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		fail("parsing %q: %s", value, err)
	}
	return v
}

// keyword parses an SMTP-style keyword: letters and digits, with inner
// dashes.
func keyword(value string) string {
	if value == "" || value[0] == '-' || value[len(value)-1] == '-' {
		fail("bad keyword %q", value)
	}
	for i := 0; i < len(value); i++ {
		if c := value[i]; !isalphadigit(c) && c != '-' {
			fail("bad keyword %q", value)
		}
	}
	return strings.ToLower(value)
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isalphadigit(s[i]) {
			return false
		}
	}
	return true
}

// uriList parses a comma separated list of DMARC URIs, each optionally
// followed by !size[unit].
func uriList(value string) []URI {
	var l []URI
	for _, v := range strings.Split(value, ",") {
		v = trimWSP(v)
		if v == "" || strings.ContainsAny(v, " \t") {
			fail("bad uri %q", v)
		}

		addr, size, hasSize := strings.Cut(v, "!")
		u, err := url.Parse(addr)
		if err != nil {
			fail("parsing uri %q: %s", addr, err)
		}
		if u.Scheme == "" {
			fail("missing scheme in uri %q", addr)
		}

		uri := URI{Address: addr}
		if hasSize {
			if n := len(size); n > 0 {
				switch c := size[n-1]; c {
				case 'k', 'K', 'm', 'M', 'g', 'G', 't', 'T':
					uri.Unit = strings.ToLower(size[n-1:])
					size = size[:n-1]
				}
			}
			uri.MaxSize, err = strconv.ParseUint(size, 10, 64)
			if err != nil {
				fail("parsing max size for uri: %s", err)
			}
		}
		l = append(l, uri)
	}
	return l
}

func isdigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isalpha(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func isalphadigit(b byte) bool {
	return isdigit(b) || isalpha(b)
}
