package dane

import (
	"crypto/x509"
	"time"

	"go.uber.org/zap"

	"github.com/synqronlabs/mailtrust/cache"
	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/metrics"
)

// Config configures a Verifier.
type Config struct {
	// Port and Protocol select the TLSA owner name, "_25._tcp.<host>" for
	// SMTP.
	Port     int
	Protocol string

	// DNSTimeout bounds each TLSA lookup.
	DNSTimeout time.Duration

	// VerificationTimeout bounds a whole Verify call.
	VerificationTimeout time.Duration

	// EnableDNSCache enables the record set cache.
	EnableDNSCache bool

	// DNSCacheTTL overrides the record TTL when positive.
	DNSCacheTTL time.Duration

	// CacheBackend selects the cache implementation, see cache.New.
	CacheBackend string

	// CacheSize bounds the record set cache.
	CacheSize int

	// PKIXValidation additionally requires usages PKIX-TA and PKIX-EE to
	// validate against Roots. RFC 7672 lets SMTP clients treat them as
	// unusable instead, so by default only the association is checked.
	PKIXValidation bool

	// Roots are the PKIX trust anchors. Nil means the system pool.
	Roots *x509.CertPool
}

// DefaultConfig returns the default verifier configuration for SMTP.
func DefaultConfig() Config {
	return Config{
		Port:                25,
		Protocol:            "tcp",
		DNSTimeout:          10 * time.Second,
		VerificationTimeout: 30 * time.Second,
		EnableDNSCache:      true,
		CacheBackend:        cache.BackendMemory,
		CacheSize:           cache.DefaultMaxSize,
	}
}

// TLSARecordSet is the DNSSEC-validated set of usable TLSA records for a
// service.
type TLSARecordSet struct {
	// Hostname is the normalized host name, without trailing dot.
	Hostname string

	// Name is the TLSA owner name queried, e.g. "_25._tcp.mx.example.com.".
	Name string

	Port int

	Records []dns.TLSA

	// Unusable counts records skipped for unknown parameters or a malformed
	// association.
	Unusable int

	DNSSECValidated bool

	TTL time.Duration
}

// VerificationResult describes the outcome of verifying a certificate chain.
type VerificationResult struct {
	Success bool

	// Message is a human readable summary.
	Message string

	// CertificatesVerified is the number of certificates in the chain.
	CertificatesVerified int

	// TLSARecordsProcessed is the number of usable records compared.
	TLSARecordsProcessed int

	VerificationTime time.Duration

	DNSSECValidated bool

	// UsageTypes, Selectors and MatchingTypes list the parameters of the
	// matching records, deduplicated and ascending.
	UsageTypes    []dns.TLSAUsage
	Selectors     []dns.TLSASelector
	MatchingTypes []dns.TLSAMatchType

	// Matched are the records that matched the chain.
	Matched []dns.TLSA
}

// Verifier authenticates TLS server certificates with TLSA records. It is
// safe for concurrent use.
type Verifier struct {
	config   Config
	resolver dns.Resolver
	records  cache.Cache[string, *TLSARecordSet]
	metrics  *metrics.Validator
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures optional Verifier collaborators.
type Option func(*Verifier)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) { v.logger = l.Named("dane") }
}

// WithMetrics sets the counters updated by the verifier.
func WithMetrics(m *metrics.Validator) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithClock sets the time used for certificate validity checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a verifier that looks up TLSA records through
// resolver, which must report the AD flag of a validating upstream. Zero
// fields in config are replaced by their defaults.
func NewVerifier(resolver dns.Resolver, config Config, opts ...Option) (*Verifier, error) {
	def := DefaultConfig()
	if config.Port <= 0 {
		config.Port = def.Port
	}
	if config.Protocol == "" {
		config.Protocol = def.Protocol
	}
	if config.DNSTimeout <= 0 {
		config.DNSTimeout = def.DNSTimeout
	}
	if config.VerificationTimeout <= 0 {
		config.VerificationTimeout = def.VerificationTimeout
	}

	v := &Verifier{
		config:   config,
		resolver: resolver,
		metrics:  metrics.NewValidator(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	if config.EnableDNSCache {
		var err error
		if v.records, err = cache.New[*TLSARecordSet](config.CacheBackend, config.CacheSize); err != nil {
			return nil, &Error{Kind: KindCacheError, Err: err}
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Metrics returns the verifier's counters.
func (v *Verifier) Metrics() *metrics.Validator {
	return v.metrics
}

// Config returns the effective configuration.
func (v *Verifier) Config() Config {
	return v.config
}
