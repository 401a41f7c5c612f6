package dkim

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
)

// Record represents a DKIM key record (RFC 6376 Section 3.6.1).
type Record struct {
	// Version is the record version, always "DKIM1".
	Version string

	// Hashes is the list of acceptable hash algorithms (e.g., "sha256").
	// Empty means all algorithms are acceptable.
	Hashes []string

	// Key is the key type: "rsa" (default) or "ed25519".
	Key string

	// Notes contains optional human-readable notes.
	Notes string

	// Pubkey is the raw public key data (base64-decoded).
	// Empty means the key has been revoked.
	Pubkey []byte

	// Services lists acceptable service types.
	// Empty or containing "*" means all services.
	Services []string

	// Flags contains key flags such as "y" (testing) and "s" (strict).
	Flags []string

	// PublicKey is the parsed public key, *rsa.PublicKey or ed25519.PublicKey.
	PublicKey any
}

// ServiceAllowed returns true if the given service is allowed by this key.
func (r *Record) ServiceAllowed(service string) bool {
	if len(r.Services) == 0 {
		return true
	}
	for _, s := range r.Services {
		if s == "*" || strings.EqualFold(s, service) {
			return true
		}
	}
	return false
}

// HashAllowed returns true if the given hash algorithm is allowed.
func (r *Record) HashAllowed(hash string) bool {
	if len(r.Hashes) == 0 {
		return true
	}
	for _, h := range r.Hashes {
		if strings.EqualFold(h, hash) {
			return true
		}
	}
	return false
}

// CheckKey verifies the record may be used to verify an email signature made
// with keyType ("rsa" or "ed25519") and hash, with RSA keys of at least
// minRSABits.
func (r *Record) CheckKey(keyType, hash string, minRSABits int) error {
	if len(r.Pubkey) == 0 || r.PublicKey == nil {
		return ErrKeyRevoked
	}
	if !r.ServiceAllowed("email") {
		return ErrKeyNotForEmail
	}
	if !r.HashAllowed(hash) {
		return fmt.Errorf("%w: %s", ErrHashAlgNotAllowed, hash)
	}
	if !strings.EqualFold(r.Key, keyType) {
		return fmt.Errorf("%w: record has %s, signature uses %s", ErrKeyTypeMismatch, r.Key, keyType)
	}
	if pk, ok := r.PublicKey.(*rsa.PublicKey); ok && pk.N.BitLen() < minRSABits {
		return fmt.Errorf("%w: %d bits, need %d", ErrWeakKey, pk.N.BitLen(), minRSABits)
	}
	return nil
}

// TXT returns the record in DNS TXT form.
func (r *Record) TXT() (string, error) {
	parts := []string{"v=DKIM1"}

	if len(r.Hashes) > 0 {
		parts = append(parts, "h="+strings.Join(r.Hashes, ":"))
	}
	if r.Key != "" && !strings.EqualFold(r.Key, "rsa") {
		parts = append(parts, "k="+r.Key)
	}
	if len(r.Services) > 0 && !(len(r.Services) == 1 && r.Services[0] == "*") {
		parts = append(parts, "s="+strings.Join(r.Services, ":"))
	}
	if len(r.Flags) > 0 {
		parts = append(parts, "t="+strings.Join(r.Flags, ":"))
	}

	pk := r.Pubkey
	if len(pk) == 0 && r.PublicKey != nil {
		var err error
		pk, err = marshalPublicKey(r.PublicKey)
		if err != nil {
			return "", err
		}
	}
	parts = append(parts, "p="+base64.StdEncoding.EncodeToString(pk))

	return strings.Join(parts, "; "), nil
}

// NewRecord returns a record publishing pub, which must be *rsa.PublicKey or
// ed25519.PublicKey.
func NewRecord(pub any) (*Record, error) {
	raw, err := marshalPublicKey(pub)
	if err != nil {
		return nil, err
	}
	keyType := "rsa"
	if _, ok := pub.(ed25519.PublicKey); ok {
		keyType = "ed25519"
	}
	return &Record{Version: "DKIM1", Key: keyType, Pubkey: raw, PublicKey: pub}, nil
}

func marshalPublicKey(key any) ([]byte, error) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return x509.MarshalPKIXPublicKey(k)
	case ed25519.PublicKey:
		return []byte(k), nil
	default:
		return nil, fmt.Errorf("unsupported public key type: %T", key)
	}
}

// ParseRecord parses a DKIM key record. The boolean reports whether txt looks
// like a DKIM record at all, so callers can skip unrelated TXT records at
// the same name.
func ParseRecord(txt string) (*Record, bool, error) {
	record := &Record{
		Version:  "DKIM1",
		Key:      "rsa",
		Services: []string{"*"},
	}

	seen := make(map[string]bool)
	isDKIM := false

	for part := range strings.SplitSeq(txt, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		tag, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		tag = strings.TrimSpace(tag)
		value = strings.TrimSpace(value)

		if seen[tag] {
			if isDKIM {
				return nil, true, fmt.Errorf("%w: duplicate tag %s", ErrSyntax, tag)
			}
			continue
		}
		seen[tag] = true

		switch tag {
		case "v":
			if value != "DKIM1" {
				return nil, false, ErrNotDKIM
			}
			isDKIM = true
		case "h":
			record.Hashes = splitColonList(value)
			isDKIM = true
		case "k":
			record.Key = strings.ToLower(value)
			isDKIM = true
		case "n":
			record.Notes = value
			isDKIM = true
		case "p":
			cleaned := strings.Map(func(r rune) rune {
				if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
					return -1
				}
				return r
			}, value)
			if cleaned != "" {
				decoded, err := base64.StdEncoding.DecodeString(cleaned)
				if err != nil {
					return nil, true, fmt.Errorf("%w: invalid public key encoding: %v", ErrSyntax, err)
				}
				record.Pubkey = decoded
			}
			isDKIM = true
		case "s":
			record.Services = splitColonList(value)
			isDKIM = true
		case "t":
			record.Flags = splitColonList(value)
			isDKIM = true
		}
	}

	if !isDKIM {
		return nil, false, ErrNotDKIM
	}
	if !seen["p"] {
		return nil, true, fmt.Errorf("%w: missing public key (p=)", ErrSyntax)
	}

	if len(record.Pubkey) > 0 {
		pk, err := parsePublicKey(record.Key, record.Pubkey)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		record.PublicKey = pk
	}

	return record, true, nil
}

func splitColonList(value string) []string {
	var l []string
	for s := range strings.SplitSeq(value, ":") {
		if s = strings.TrimSpace(s); s != "" {
			l = append(l, s)
		}
	}
	return l
}

func parsePublicKey(keyType string, data []byte) (any, error) {
	switch keyType {
	case "", "rsa":
		pk, err := x509.ParsePKIXPublicKey(data)
		if err != nil {
			return nil, fmt.Errorf("invalid RSA public key: %w", err)
		}
		rsaPK, ok := pk.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("expected RSA public key, got %T", pk)
		}
		return rsaPK, nil
	case "ed25519":
		if len(data) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid Ed25519 public key size: %d", len(data))
		}
		return ed25519.PublicKey(data), nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", keyType)
	}
}
