package arc

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strings"
	"time"
)

// DefaultSignedHeaders is the list of headers an ARC-Message-Signature covers
// when a Sealer has none configured. Headers missing from the message are
// left out.
var DefaultSignedHeaders = []string{
	"From",
	"To",
	"Cc",
	"Subject",
	"Date",
	"Message-ID",
	"In-Reply-To",
	"References",
	"MIME-Version",
	"Content-Type",
	"Content-Transfer-Encoding",
	"DKIM-Signature",
	"Authentication-Results",
}

// Sealer adds ARC sets to messages on behalf of one signing domain.
type Sealer struct {
	// Domain and Selector locate the public key, published at
	// Selector._domainkey.Domain.
	Domain   string
	Selector string

	// PrivateKey is an *rsa.PrivateKey or ed25519.PrivateKey.
	PrivateKey crypto.Signer

	// Headers lists the headers to sign. Empty means DefaultSignedHeaders.
	Headers []string

	// Canonicalization for the ARC-Message-Signature. Empty means relaxed.
	HeaderCanonicalization Canonicalization
	BodyCanonicalization   Canonicalization

	// Clock sets t=. Nil means time.Now.
	Clock func() time.Time
}

// SealResult holds the three header lines of a new ARC set, without line
// terminators.
type SealResult struct {
	Instance              int
	AuthenticationResults string
	MessageSignature      string
	Seal                  string
}

// Prepend returns message with the new ARC set added on top.
func (r *SealResult) Prepend(message []byte) []byte {
	var b strings.Builder
	b.Grow(len(r.Seal) + len(r.MessageSignature) + len(r.AuthenticationResults) + len(message) + 6)
	b.WriteString(r.Seal + "\r\n")
	b.WriteString(r.MessageSignature + "\r\n")
	b.WriteString(r.AuthenticationResults + "\r\n")
	b.Write(message)
	return []byte(b.String())
}

// Seal creates the next ARC set for message. authResults is the result list
// this hop observed and cv its verdict on the existing chain; the first set
// of a chain must use ChainValidationNone and later sets must not.
func (s *Sealer) Seal(message []byte, authServID, authResults string, cv ChainValidationStatus) (*SealResult, error) {
	if s.Domain == "" || s.Selector == "" {
		return nil, fmt.Errorf("%w: domain and selector are required", ErrMissingTag)
	}
	if authServID == "" {
		return nil, fmt.Errorf("%w: missing authserv-id", ErrSyntax)
	}
	algorithm, err := s.algorithm()
	if err != nil {
		return nil, err
	}

	headers, body := splitMessage(message)
	hasFrom := false
	for _, h := range headers {
		if h.lkey == "from" {
			hasFrom = true
			break
		}
	}
	if !hasFrom {
		return nil, ErrFromRequired
	}

	existing, err := collectSets(headers)
	if err != nil {
		return nil, err
	}
	instance := len(existing) + 1
	if instance > MaxInstance {
		return nil, fmt.Errorf("%w: %d sets", ErrTooManySets, len(existing))
	}
	chain := make([]*Set, 0, instance)
	for i := 1; i < instance; i++ {
		set := existing[i]
		if set == nil || !set.complete() {
			return nil, fmt.Errorf("%w: instance %d", ErrMissingSet, i)
		}
		chain = append(chain, set)
	}
	if (instance == 1) != (cv == ChainValidationNone) {
		return nil, fmt.Errorf("%w: cv=%s for instance %d", ErrChainValidationMismatch, cv, instance)
	}

	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	timestamp := now().Unix()
	hash := crypto.SHA256

	aar := &AuthenticationResults{Instance: instance, AuthServID: authServID, Results: authResults}
	aarLine := aar.Header()

	headerCanon := s.HeaderCanonicalization
	if headerCanon == "" {
		headerCanon = CanonRelaxed
	}
	bodyCanon := s.BodyCanonicalization
	if bodyCanon == "" {
		bodyCanon = CanonRelaxed
	}

	ms := &MessageSignature{
		Instance:         instance,
		Version:          1,
		Algorithm:        algorithm,
		Domain:           strings.ToLower(s.Domain),
		Selector:         s.Selector,
		Canonicalization: string(headerCanon) + "/" + string(bodyCanon),
		SignedHeaders:    s.signedHeaders(headers),
		Length:           -1,
		Timestamp:        timestamp,
		Expiration:       -1,
		BodyHash:         bodyHash(hash.New(), bodyCanon, body, -1),
	}
	data, err := amsDataHash(hash.New(), headerCanon, headers, ms.SignedHeaders, []byte(ms.Header(false)+"\r\n"))
	if err != nil {
		return nil, err
	}
	if ms.Signature, err = signWithKey(s.PrivateKey, hash, data); err != nil {
		return nil, fmt.Errorf("signing ARC-Message-Signature: %w", err)
	}
	amsLine := ms.Header(true)

	seal := &Seal{
		Instance:        instance,
		Version:         1,
		Algorithm:       algorithm,
		Domain:          strings.ToLower(s.Domain),
		Selector:        s.Selector,
		ChainValidation: cv,
		Timestamp:       timestamp,
	}
	chain = append(chain, &Set{
		Instance: instance,
		rawAAR:   []byte(aarLine + "\r\n"),
		rawAMS:   []byte(amsLine + "\r\n"),
		rawSeal:  []byte(seal.Header(false) + "\r\n"),
	})
	if data, err = sealDataHash(hash.New(), chain); err != nil {
		return nil, err
	}
	if seal.Signature, err = signWithKey(s.PrivateKey, hash, data); err != nil {
		return nil, fmt.Errorf("signing ARC-Seal: %w", err)
	}

	return &SealResult{
		Instance:              instance,
		AuthenticationResults: aarLine,
		MessageSignature:      amsLine,
		Seal:                  seal.Header(true),
	}, nil
}

func (s *Sealer) algorithm() (string, error) {
	switch s.PrivateKey.(type) {
	case *rsa.PrivateKey:
		return string(AlgRSASHA256), nil
	case ed25519.PrivateKey:
		return string(AlgEd25519SHA256), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrAlgorithmUnknown, s.PrivateKey)
	}
}

// signedHeaders returns the configured header names present in the message,
// with From first if it was not listed. ARC-Seal is never signed.
func (s *Sealer) signedHeaders(headers []header) []string {
	names := s.Headers
	if len(names) == 0 {
		names = DefaultSignedHeaders
	}

	present := make(map[string]bool)
	for _, h := range headers {
		present[h.lkey] = true
	}

	signed := []string{}
	hasFrom := false
	for _, n := range names {
		ln := strings.ToLower(n)
		if ln == "arc-seal" || !present[ln] {
			continue
		}
		if ln == "from" {
			hasFrom = true
		}
		signed = append(signed, n)
	}
	if !hasFrom {
		signed = append([]string{"From"}, signed...)
	}
	return signed
}

// signWithKey signs the digest data. Ed25519 signs the digest itself as the
// message, per RFC 8463.
func signWithKey(key crypto.Signer, hash crypto.Hash, data []byte) ([]byte, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k.Sign(rand.Reader, data, hash)
	case ed25519.PrivateKey:
		return k.Sign(rand.Reader, data, crypto.Hash(0))
	default:
		return nil, fmt.Errorf("%w: %T", ErrAlgorithmUnknown, key)
	}
}
