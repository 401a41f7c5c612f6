package arc

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Set is the group of ARC headers sharing one instance number. Any of the
// three headers may be missing in a broken chain.
type Set struct {
	Instance int

	AuthenticationResults *AuthenticationResults
	MessageSignature      *MessageSignature
	Seal                  *Seal

	// raw holds the header lines as they appear in the message, used to
	// compute seal hashes.
	rawAAR  []byte
	rawAMS  []byte
	rawSeal []byte
}

// complete reports whether all three headers are present.
func (s *Set) complete() bool {
	return s.AuthenticationResults != nil && s.MessageSignature != nil && s.Seal != nil
}

// AuthenticationResults is a parsed ARC-Authentication-Results header.
type AuthenticationResults struct {
	Instance int

	// AuthServID is the authentication service identifier.
	AuthServID string

	// Results is the result list following the authserv-id, unparsed.
	Results string

	Raw string
}

// MessageSignature is a parsed ARC-Message-Signature header. It carries the
// DKIM-Signature tags plus an instance number.
type MessageSignature struct {
	Instance  int
	Version   int
	Algorithm string
	Signature []byte
	BodyHash  []byte
	Domain    string

	// SignedHeaders lists the h= header names in signing order.
	SignedHeaders []string

	Selector string

	// Canonicalization is the c= value, "header/body".
	Canonicalization string

	// Length, Timestamp and Expiration are -1 when absent.
	Length     int64
	Timestamp  int64
	Expiration int64

	Raw string
}

// Seal is a parsed ARC-Seal header.
type Seal struct {
	Instance        int
	Version         int
	Algorithm       string
	Signature       []byte
	Domain          string
	Selector        string
	ChainValidation ChainValidationStatus

	// Timestamp is -1 when absent.
	Timestamp int64

	Raw string
}

// HeaderCanon returns the header canonicalization algorithm.
func (ms *MessageSignature) HeaderCanon() Canonicalization {
	h, _, _ := strings.Cut(ms.Canonicalization, "/")
	return canonOf(h)
}

// BodyCanon returns the body canonicalization algorithm. A c= without a body
// part means simple.
func (ms *MessageSignature) BodyCanon() Canonicalization {
	_, b, _ := strings.Cut(ms.Canonicalization, "/")
	return canonOf(b)
}

func canonOf(s string) Canonicalization {
	if strings.EqualFold(strings.TrimSpace(s), "relaxed") {
		return CanonRelaxed
	}
	return CanonSimple
}

// splitAlgorithm splits "rsa-sha256" into "rsa" and "sha256".
func splitAlgorithm(alg string) (sign, hash string) {
	sign, hash, _ = strings.Cut(strings.ToLower(alg), "-")
	return sign, hash
}

// AlgorithmHash returns the hash algorithm part, e.g. "sha256".
func (ms *MessageSignature) AlgorithmHash() string {
	_, h := splitAlgorithm(ms.Algorithm)
	return h
}

// AlgorithmSign returns the key algorithm part, e.g. "rsa".
func (ms *MessageSignature) AlgorithmSign() string {
	s, _ := splitAlgorithm(ms.Algorithm)
	return s
}

// AlgorithmHash returns the hash algorithm part of the seal algorithm.
func (s *Seal) AlgorithmHash() string {
	_, h := splitAlgorithm(s.Algorithm)
	return h
}

// AlgorithmSign returns the key algorithm part of the seal algorithm.
func (s *Seal) AlgorithmSign() string {
	a, _ := splitAlgorithm(s.Algorithm)
	return a
}

// ParseAuthenticationResults parses an ARC-Authentication-Results header
// value: "i=N; authserv-id; results".
func ParseAuthenticationResults(value string) (*AuthenticationResults, error) {
	value = strings.TrimSpace(value)
	if len(value) < 2 || !strings.EqualFold(value[:2], "i=") {
		return nil, fmt.Errorf("%w: ARC-Authentication-Results must start with i=", ErrSyntax)
	}

	head, rest, ok := strings.Cut(value, ";")
	if !ok {
		return nil, fmt.Errorf("%w: missing authserv-id in ARC-Authentication-Results", ErrSyntax)
	}
	instance, err := parseInstance(strings.TrimSpace(head[2:]))
	if err != nil {
		return nil, err
	}

	aar := &AuthenticationResults{Instance: instance, Raw: value}

	rest = strings.TrimSpace(rest)
	if idx := strings.IndexAny(rest, "; \t\r\n"); idx >= 0 {
		aar.AuthServID = rest[:idx]
		aar.Results = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest[idx:]), ";"))
	} else {
		aar.AuthServID = rest
	}
	if aar.AuthServID == "" {
		return nil, fmt.Errorf("%w: missing authserv-id", ErrSyntax)
	}
	return aar, nil
}

func parseInstance(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid i= tag %q", ErrSyntax, s)
	}
	if n < 1 || n > MaxInstance {
		return 0, fmt.Errorf("%w: %d", ErrInvalidInstance, n)
	}
	return n, nil
}

// ParseMessageSignature parses an ARC-Message-Signature header value.
func ParseMessageSignature(value string) (*MessageSignature, error) {
	tags, err := parseTags(value)
	if err != nil {
		return nil, err
	}

	ms := &MessageSignature{
		Raw:        value,
		Version:    1,
		Length:     -1,
		Timestamp:  -1,
		Expiration: -1,
	}

	for _, t := range tags {
		switch t.name {
		case "i":
			if ms.Instance, err = parseInstance(t.value); err != nil {
				return nil, err
			}
		case "v":
			if t.value != "1" {
				return nil, fmt.Errorf("%w: v=%s", ErrInvalidVersion, t.value)
			}
		case "a":
			ms.Algorithm = strings.ToLower(t.value)
		case "b":
			if ms.Signature, err = decodeBase64(t); err != nil {
				return nil, err
			}
		case "bh":
			if ms.BodyHash, err = decodeBase64(t); err != nil {
				return nil, err
			}
		case "d":
			ms.Domain = strings.ToLower(t.value)
		case "h":
			for h := range strings.SplitSeq(t.value, ":") {
				if h = strings.TrimSpace(h); h != "" {
					ms.SignedHeaders = append(ms.SignedHeaders, h)
				}
			}
		case "s":
			ms.Selector = t.value
		case "c":
			ms.Canonicalization = strings.ToLower(t.value)
		case "l":
			if ms.Length, err = parseNumber(t); err != nil {
				return nil, err
			}
		case "t":
			if ms.Timestamp, err = parseNumber(t); err != nil {
				return nil, err
			}
		case "x":
			if ms.Expiration, err = parseNumber(t); err != nil {
				return nil, err
			}
		}
	}

	if err := requireTags(tags, "i", "a", "b", "bh", "d", "h", "s"); err != nil {
		return nil, err
	}
	if ms.Canonicalization == "" {
		ms.Canonicalization = "simple/simple"
	}
	return ms, nil
}

// ParseSeal parses an ARC-Seal header value.
func ParseSeal(value string) (*Seal, error) {
	tags, err := parseTags(value)
	if err != nil {
		return nil, err
	}

	seal := &Seal{Raw: value, Version: 1, Timestamp: -1}

	for _, t := range tags {
		switch t.name {
		case "i":
			if seal.Instance, err = parseInstance(t.value); err != nil {
				return nil, err
			}
		case "v":
			if t.value != "1" {
				return nil, fmt.Errorf("%w: v=%s", ErrInvalidVersion, t.value)
			}
		case "a":
			seal.Algorithm = strings.ToLower(t.value)
		case "b":
			if seal.Signature, err = decodeBase64(t); err != nil {
				return nil, err
			}
		case "cv":
			switch cv := ChainValidationStatus(strings.ToLower(t.value)); cv {
			case ChainValidationNone, ChainValidationPass, ChainValidationFail:
				seal.ChainValidation = cv
			default:
				return nil, fmt.Errorf("%w: invalid cv=%s", ErrSyntax, t.value)
			}
		case "d":
			seal.Domain = strings.ToLower(t.value)
		case "s":
			seal.Selector = t.value
		case "t":
			if seal.Timestamp, err = parseNumber(t); err != nil {
				return nil, err
			}
		case "h":
			// RFC 8617 section 4.1.3: h= is not allowed in ARC-Seal.
			return nil, fmt.Errorf("%w: h= tag in ARC-Seal", ErrSyntax)
		}
	}

	if err := requireTags(tags, "i", "a", "b", "cv", "d", "s"); err != nil {
		return nil, err
	}
	return seal, nil
}

type tag struct {
	name  string
	value string
}

// parseTags splits a tag-list into tags in header order. Duplicate tag names
// are a syntax error.
func parseTags(value string) ([]tag, error) {
	var tags []tag
	seen := make(map[string]bool)
	for part := range strings.SplitSeq(value, ";") {
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			if strings.TrimSpace(part) != "" {
				return nil, fmt.Errorf("%w: tag without value %q", ErrSyntax, strings.TrimSpace(part))
			}
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty tag name", ErrSyntax)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate tag %s", ErrSyntax, name)
		}
		seen[name] = true
		tags = append(tags, tag{name: name, value: strings.TrimSpace(val)})
	}
	return tags, nil
}

func requireTags(tags []tag, names ...string) error {
	for _, n := range names {
		found := false
		for _, t := range tags {
			if t.name == n {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s=", ErrMissingTag, n)
		}
	}
	return nil
}

func decodeBase64(t tag) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(stripWhitespace(t.value))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s= tag: %v", ErrSyntax, t.name, err)
	}
	return b, nil
}

func parseNumber(t tag) (int64, error) {
	n, err := strconv.ParseInt(t.value, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s= tag %q", ErrSyntax, t.name, t.value)
	}
	return n, nil
}

// stripWhitespace removes folding whitespace from a base64 value.
func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}

// Header returns the ARC-Authentication-Results header line without CRLF.
func (aar *AuthenticationResults) Header() string {
	var b strings.Builder
	b.WriteString("ARC-Authentication-Results: i=")
	b.WriteString(strconv.Itoa(aar.Instance))
	b.WriteString("; ")
	b.WriteString(aar.AuthServID)
	if aar.Results != "" {
		b.WriteString(";\r\n\t")
		b.WriteString(aar.Results)
	}
	return b.String()
}

// Header returns the ARC-Message-Signature header line without CRLF. With
// includeSignature false the b= tag is left empty, as needed for signing.
func (ms *MessageSignature) Header(includeSignature bool) string {
	w := &headerWriter{}

	w.add("", "ARC-Message-Signature: i="+strconv.Itoa(ms.Instance)+";")
	w.add(" ", "a="+ms.Algorithm+";")
	if ms.Canonicalization != "" {
		w.add(" ", "c="+ms.Canonicalization+";")
	}
	w.add(" ", "d="+ms.Domain+";")
	w.add(" ", "s="+ms.Selector+";")
	if ms.Timestamp >= 0 {
		w.add(" ", "t="+strconv.FormatInt(ms.Timestamp, 10)+";")
	}
	if ms.Expiration >= 0 {
		w.add(" ", "x="+strconv.FormatInt(ms.Expiration, 10)+";")
	}
	if ms.Length >= 0 {
		w.add(" ", "l="+strconv.FormatInt(ms.Length, 10)+";")
	}

	for i, h := range ms.SignedHeaders {
		sep := ""
		if i == 0 {
			h = "h=" + h
			sep = " "
		}
		if i < len(ms.SignedHeaders)-1 {
			h += ":"
		} else {
			h += ";"
		}
		w.add(sep, h)
	}

	w.add(" ", "bh=")
	w.addWrap([]byte(base64.StdEncoding.EncodeToString(ms.BodyHash)))
	w.add("", ";")

	w.add(" ", "b=")
	if includeSignature {
		w.addWrap([]byte(base64.StdEncoding.EncodeToString(ms.Signature)))
	}
	return w.String()
}

// Header returns the ARC-Seal header line without CRLF. With
// includeSignature false the b= tag is left empty.
func (s *Seal) Header(includeSignature bool) string {
	w := &headerWriter{}

	w.add("", "ARC-Seal: i="+strconv.Itoa(s.Instance)+";")
	w.add(" ", "a="+s.Algorithm+";")
	w.add(" ", "cv="+string(s.ChainValidation)+";")
	w.add(" ", "d="+s.Domain+";")
	w.add(" ", "s="+s.Selector+";")
	if s.Timestamp >= 0 {
		w.add(" ", "t="+strconv.FormatInt(s.Timestamp, 10)+";")
	}

	w.add(" ", "b=")
	if includeSignature {
		w.addWrap([]byte(base64.StdEncoding.EncodeToString(s.Signature)))
	}
	return w.String()
}

// headerWriter folds generated header lines at 76 columns.
type headerWriter struct {
	b        strings.Builder
	lineLen  int
	nonfirst bool
}

const foldWidth = 76

func (w *headerWriter) add(sep, text string) {
	if w.nonfirst && w.lineLen > 1 && w.lineLen+len(sep)+len(text) > foldWidth {
		w.b.WriteString("\r\n\t")
		w.lineLen = 1
	} else if w.nonfirst && sep != "" {
		w.b.WriteString(sep)
		w.lineLen += len(sep)
	}
	w.b.WriteString(text)
	w.lineLen += len(text)
	w.nonfirst = true
}

func (w *headerWriter) addWrap(data []byte) {
	for len(data) > 0 {
		n := foldWidth - w.lineLen
		if n <= 0 {
			w.b.WriteString("\r\n\t")
			w.lineLen = 1
			n = foldWidth - 1
		}
		n = min(n, len(data))
		w.b.Write(data[:n])
		w.lineLen += n
		data = data[n:]
	}
}

func (w *headerWriter) String() string {
	return w.b.String()
}
