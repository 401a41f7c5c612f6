package arc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/synqronlabs/mailtrust/autherr"
	"github.com/synqronlabs/mailtrust/cache"
	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/metrics"
)

// Config configures a Validator.
type Config struct {
	// DNSTimeout bounds each key lookup.
	DNSTimeout time.Duration

	// ValidationTimeout bounds a whole Validate call.
	ValidationTimeout time.Duration

	// MaxARCHeaders is the number of ARC instances examined. Older
	// instances beyond it are dropped and the chain fails.
	MaxARCHeaders int

	// EnableDNSCache enables the key and result caches.
	EnableDNSCache bool

	// DNSCacheTTL overrides the record TTL for cache entries when positive.
	DNSCacheTTL time.Duration

	// CacheBackend selects the cache implementation, see cache.New.
	CacheBackend string

	// CacheSize bounds each cache.
	CacheSize int

	// StrictValidation requires every ARC-Message-Signature to verify. When
	// false only the newest one is checked, as RFC 8617 section 5.2 allows.
	StrictValidation bool

	// MinRSAKeyBits is the smallest RSA key accepted.
	MinRSAKeyBits int
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		DNSTimeout:        10 * time.Second,
		ValidationTimeout: 30 * time.Second,
		MaxARCHeaders:     MaxInstance,
		EnableDNSCache:    true,
		CacheBackend:      cache.BackendMemory,
		CacheSize:         cache.DefaultMaxSize,
		StrictValidation:  true,
		MinRSAKeyBits:     1024,
	}
}

// maxParallelAMS bounds concurrent ARC-Message-Signature checks per message.
const maxParallelAMS = 8

// Validator validates ARC chains. It is safe for concurrent use.
type Validator struct {
	config   Config
	resolver dns.Resolver
	keys     cache.Cache[string, *key]
	results  cache.Cache[string, *ValidationResult]
	metrics  *metrics.Validator
	logger   *zap.Logger
	clock    func() time.Time
}

// Option configures optional Validator collaborators.
type Option func(*Validator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) { v.logger = l.Named("arc") }
}

// WithMetrics sets the counters updated by the validator.
func WithMetrics(m *metrics.Validator) Option {
	return func(v *Validator) { v.metrics = m }
}

// WithClock sets the clock used for signature expiration checks.
func WithClock(clock func() time.Time) Option {
	return func(v *Validator) { v.clock = clock }
}

// NewValidator returns a validator that fetches keys through resolver.
// Zero values in config are replaced by their defaults.
func NewValidator(resolver dns.Resolver, config Config, opts ...Option) (*Validator, error) {
	def := DefaultConfig()
	if config.DNSTimeout <= 0 {
		config.DNSTimeout = def.DNSTimeout
	}
	if config.ValidationTimeout <= 0 {
		config.ValidationTimeout = def.ValidationTimeout
	}
	if config.MaxARCHeaders <= 0 || config.MaxARCHeaders > MaxInstance {
		config.MaxARCHeaders = def.MaxARCHeaders
	}
	if config.MinRSAKeyBits <= 0 {
		config.MinRSAKeyBits = def.MinRSAKeyBits
	}

	v := &Validator{
		config:   config,
		resolver: resolver,
		metrics:  metrics.NewValidator(),
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	if config.EnableDNSCache {
		var err error
		if v.keys, err = cache.New[*key](config.CacheBackend, config.CacheSize); err != nil {
			return nil, err
		}
		if v.results, err = cache.New[*ValidationResult](config.CacheBackend, config.CacheSize); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Metrics returns the validator's counters.
func (v *Validator) Metrics() *metrics.Validator {
	return v.metrics
}

// Config returns the effective configuration.
func (v *Validator) Config() Config {
	return v.config
}

// validation holds the state of one Validate call.
type validation struct {
	v         *Validator
	sessionID string

	dnsTime    atomic.Int64
	verifyTime atomic.Int64

	mu     sync.Mutex
	minTTL time.Duration
	sawTTL bool
}

func (run *validation) observeTTL(ttl time.Duration) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if !run.sawTTL || ttl < run.minTTL {
		run.minTTL = ttl
		run.sawTTL = true
	}
}

// Validate validates the ARC chain of message, a complete RFC 5322 message.
//
// Chain outcomes, including malformed ARC headers, are reported in the
// result. An error is returned only for an empty message, a cancelled
// context, or when ValidationTimeout is exceeded (*autherr.OperationTimeout).
func (v *Validator) Validate(ctx context.Context, sessionID string, message []byte) (*ValidationResult, error) {
	start := time.Now()
	log := v.logger.With(zap.String("session_id", sessionID))

	if len(bytes.TrimSpace(message)) == 0 {
		v.metrics.RecordValidation(metrics.OutcomeFailure)
		return nil, &autherr.InvalidMessageFormat{Reason: "empty message", Component: "arc"}
	}

	ctx, cancel := context.WithTimeout(ctx, v.config.ValidationTimeout)
	defer cancel()

	run := &validation{v: v, sessionID: sessionID}
	res, err := run.validate(ctx, message)
	if err != nil {
		v.metrics.RecordValidation(metrics.OutcomeFailure)
		return nil, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		v.metrics.RecordValidation(metrics.OutcomeFailure)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			err := &autherr.OperationTimeout{
				Operation: "arc validation",
				Limit:     v.config.ValidationTimeout,
				Elapsed:   time.Since(start),
			}
			log.Warn("ARC validation timed out", err.Fields()...)
			return nil, err
		}
		return nil, ctxErr
	}

	res.DNSLookupTime = time.Duration(run.dnsTime.Load())
	res.SignatureVerificationTime = time.Duration(run.verifyTime.Load())
	res.TotalValidationTime = time.Since(start)

	switch res.Result {
	case StatusPass:
		v.metrics.RecordValidation(metrics.OutcomeSuccess)
	case StatusNone:
		v.metrics.RecordValidation(metrics.OutcomeNone)
	default:
		v.metrics.RecordValidation(metrics.OutcomeFailure)
	}
	v.metrics.AddVerifyTime(res.SignatureVerificationTime)

	fields := []zap.Field{
		zap.Stringer("result", res.Result),
		zap.Int("chain_length", res.ChainLength),
		zap.Bool("chain_valid", res.ChainValid),
		zap.Bool("cached", res.Cached),
		zap.Duration("elapsed", res.TotalValidationTime),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	log.Info("ARC validation complete", fields...)

	return res, nil
}

func (run *validation) validate(ctx context.Context, message []byte) (*ValidationResult, error) {
	v := run.v
	log := v.logger.With(zap.String("session_id", run.sessionID))

	headers, body := splitMessage(message)
	if len(headers) == 0 {
		return nil, &autherr.InvalidMessageFormat{Reason: "no header fields", Component: "arc"}
	}

	sets, err := collectSets(headers)
	if err != nil {
		log.Debug("malformed ARC header", zap.Error(err))
		return &ValidationResult{Result: StatusPermerror, Err: err}, nil
	}
	if len(sets) == 0 {
		return &ValidationResult{Result: StatusNone}, nil
	}

	res := &ValidationResult{}
	for i := range sets {
		res.HighestInstance = max(res.HighestInstance, i)
	}

	lowest := 1
	if res.HighestInstance > v.config.MaxARCHeaders {
		lowest = res.HighestInstance - v.config.MaxARCHeaders + 1
		res.LimitsExceeded = true
	}

	chain := make([]*Set, 0, res.HighestInstance-lowest+1)
	for i := lowest; i <= res.HighestInstance; i++ {
		s := sets[i]
		if s == nil {
			s = &Set{Instance: i}
		}
		chain = append(chain, s)
		res.Elements = append(res.Elements, newElement(s))
	}
	res.ChainLength = len(res.Elements)

	if res.LimitsExceeded {
		res.Result = StatusFail
		res.Err = fmt.Errorf("%w: %d instances, limit %d", ErrTooManySets, res.HighestInstance, v.config.MaxARCHeaders)
		log.Debug("ARC chain exceeds limit", zap.Int("highest_instance", res.HighestInstance))
		return res, nil
	}

	res.ChainValid = true
	for i, s := range chain {
		if !s.complete() {
			res.ChainValid = false
			err := fmt.Errorf("%w: instance %d", ErrMissingSet, s.Instance)
			if s.AuthenticationResults == nil && s.MessageSignature == nil && s.Seal == nil {
				err = fmt.Errorf("%w: instance %d", ErrGapInChain, s.Instance)
			}
			res.Elements[i].Error = err.Error()
			if res.Err == nil {
				res.Err = err
			}
		}
	}
	if !res.ChainValid {
		res.Result = StatusPermerror
		log.Debug("ARC chain structurally invalid", zap.Error(res.Err))
		return res, nil
	}

	if err := checkChainValidation(chain); err != nil {
		res.Result = StatusFail
		res.Err = err
		log.Debug("ARC cv= sequence rejected", zap.Error(err))
		return res, nil
	}

	newest := chain[len(chain)-1].Seal
	cacheKey := resultKey(newest, message)
	if v.results != nil {
		if cached, ok := v.results.Get(cacheKey); ok {
			v.metrics.CacheHit()
			c := cached.clone()
			c.Cached = true
			log.Debug("ARC result served from cache")
			return c, nil
		}
		v.metrics.CacheMiss()
	}

	temporary, firstErr := run.verifySignatures(ctx, chain, headers, body, res.Elements)

	res.AllSignaturesValid = firstErr == nil
	switch {
	case temporary:
		res.Result = StatusTemperror
		res.Err = firstErr
	case firstErr == nil:
		res.Result = StatusPass
	default:
		res.Result = StatusFail
		checked, failed := 0, 0
		for _, e := range res.Elements {
			if e.AMSVerified || e.SealVerified || e.Error != "" {
				checked++
			}
			if e.Error != "" {
				failed++
			}
		}
		res.Err = &autherr.VerificationFailed{
			Subject: "ARC chain",
			Reason:  firstErr.Error(),
			Checked: checked,
			Failed:  failed,
		}
	}

	if v.results != nil && res.Result != StatusTemperror && ctx.Err() == nil {
		run.mu.Lock()
		ttl := run.minTTL
		run.mu.Unlock()
		v.results.Put(cacheKey, res.clone(), ttl)
	}
	return res, nil
}

// verifySignatures checks the ARC-Message-Signatures in parallel and then the
// seals in instance order, recording the outcome in elements. It reports
// whether any failure was temporary, and the first failure.
func (run *validation) verifySignatures(ctx context.Context, chain []*Set, headers []header, body []byte, elements []ChainElement) (bool, error) {
	v := run.v
	amsErrs := make([]error, len(chain))

	var g errgroup.Group
	g.SetLimit(maxParallelAMS)
	for i, s := range chain {
		if !v.config.StrictValidation && i != len(chain)-1 {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			amsErrs[i] = run.verifyAMS(ctx, s, headers, body)
			elements[i].AMSVerified = amsErrs[i] == nil
			elements[i].ValidationTime += time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	temporary := false
	note := func(i int, err error) {
		if err == nil {
			return
		}
		if elements[i].Error == "" {
			elements[i].Error = err.Error()
		}
		if autherr.IsTemporary(err) {
			temporary = true
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	for i := range chain {
		note(i, amsErrs[i])

		start := time.Now()
		err := run.verifySeal(ctx, chain[:i+1])
		elements[i].SealVerified = err == nil
		elements[i].ValidationTime += time.Since(start)
		note(i, err)
	}
	return temporary, firstErr
}

func (run *validation) verifyAMS(ctx context.Context, s *Set, headers []header, body []byte) error {
	v := run.v
	ms := s.MessageSignature

	hash, ok := getHash(ms.AlgorithmHash())
	if !ok {
		return fmt.Errorf("%w: %s", ErrHashUnknown, ms.Algorithm)
	}
	if ms.Expiration >= 0 && ms.Expiration < v.clock().Unix() {
		return fmt.Errorf("%w: at %d", ErrExpired, ms.Expiration)
	}
	hasFrom := false
	for _, h := range ms.SignedHeaders {
		if strings.EqualFold(h, "from") {
			hasFrom = true
			break
		}
	}
	if !hasFrom {
		return ErrFromRequired
	}

	k, err := run.lookupKey(ctx, ms.Selector, ms.Domain)
	if err != nil {
		return err
	}
	if err := v.checkKey(k, ms.Algorithm); err != nil {
		return err
	}

	start := time.Now()
	defer func() { run.verifyTime.Add(int64(time.Since(start))) }()

	if bh := bodyHash(hash.New(), ms.BodyCanon(), body, ms.Length); !bytes.Equal(bh, ms.BodyHash) {
		return fmt.Errorf("%w: instance %d", ErrBodyHashMismatch, ms.Instance)
	}
	data, err := amsDataHash(hash.New(), ms.HeaderCanon(), headers, ms.SignedHeaders, s.rawAMS)
	if err != nil {
		return err
	}
	if err := verifyWithKey(k.record.PublicKey, hash, data, ms.Signature); err != nil {
		return fmt.Errorf("%w: instance %d: %v", ErrMessageSignatureFailed, ms.Instance, err)
	}
	return nil
}

// verifySeal verifies the seal of the last set in sets, which covers all of
// sets.
func (run *validation) verifySeal(ctx context.Context, sets []*Set) error {
	v := run.v
	seal := sets[len(sets)-1].Seal

	hash, ok := getHash(seal.AlgorithmHash())
	if !ok {
		return fmt.Errorf("%w: %s", ErrHashUnknown, seal.Algorithm)
	}

	k, err := run.lookupKey(ctx, seal.Selector, seal.Domain)
	if err != nil {
		return err
	}
	if err := v.checkKey(k, seal.Algorithm); err != nil {
		return err
	}

	start := time.Now()
	defer func() { run.verifyTime.Add(int64(time.Since(start))) }()

	data, err := sealDataHash(hash.New(), sets)
	if err != nil {
		return err
	}
	if err := verifyWithKey(k.record.PublicKey, hash, data, seal.Signature); err != nil {
		return fmt.Errorf("%w: instance %d: %v", ErrSealFailed, seal.Instance, err)
	}
	return nil
}

// collectSets groups the ARC headers of a message by instance. Unparsable
// headers and repeated instances yield *autherr.InvalidRecord.
func collectSets(headers []header) (map[int]*Set, error) {
	sets := make(map[int]*Set)
	get := func(i int) *Set {
		s := sets[i]
		if s == nil {
			s = &Set{Instance: i}
			sets[i] = s
		}
		return s
	}
	invalid := func(h header, err error) error {
		return &autherr.InvalidRecord{Reason: err.Error(), Raw: strings.TrimRight(string(h.raw), "\r\n")}
	}
	duplicate := func(h header, i int) error {
		return invalid(h, fmt.Errorf("%w: %s i=%d", ErrDuplicateSet, h.lkey, i))
	}

	for _, h := range headers {
		switch h.lkey {
		case "arc-authentication-results":
			aar, err := ParseAuthenticationResults(h.value())
			if err != nil {
				return nil, invalid(h, err)
			}
			s := get(aar.Instance)
			if s.AuthenticationResults != nil {
				return nil, duplicate(h, aar.Instance)
			}
			s.AuthenticationResults, s.rawAAR = aar, h.raw
		case "arc-message-signature":
			ms, err := ParseMessageSignature(h.value())
			if err != nil {
				return nil, invalid(h, err)
			}
			s := get(ms.Instance)
			if s.MessageSignature != nil {
				return nil, duplicate(h, ms.Instance)
			}
			s.MessageSignature, s.rawAMS = ms, h.raw
		case "arc-seal":
			seal, err := ParseSeal(h.value())
			if err != nil {
				return nil, invalid(h, err)
			}
			s := get(seal.Instance)
			if s.Seal != nil {
				return nil, duplicate(h, seal.Instance)
			}
			s.Seal, s.rawSeal = seal, h.raw
		}
	}
	return sets, nil
}

// checkChainValidation applies the cv= rules: the first seal says none, all
// later seals say pass.
func checkChainValidation(chain []*Set) error {
	for i, s := range chain {
		cv := s.Seal.ChainValidation
		switch {
		case cv == ChainValidationFail:
			return fmt.Errorf("%w: instance %d has cv=fail", ErrChainValidationMismatch, s.Instance)
		case i == 0 && cv != ChainValidationNone:
			return fmt.Errorf("%w: instance 1 has cv=%s", ErrChainValidationMismatch, cv)
		case i > 0 && cv != ChainValidationPass:
			return fmt.Errorf("%w: instance %d has cv=%s", ErrChainValidationMismatch, s.Instance, cv)
		}
	}
	return nil
}

func newElement(s *Set) ChainElement {
	e := ChainElement{
		Instance: s.Instance,
		HasAAR:   s.AuthenticationResults != nil,
		HasAMS:   s.MessageSignature != nil,
		HasSeal:  s.Seal != nil,
	}
	if s.MessageSignature != nil {
		e.SigningDomain = s.MessageSignature.Domain
		e.Selector = s.MessageSignature.Selector
	}
	if s.Seal != nil {
		e.SealDomain = s.Seal.Domain
		e.SealSelector = s.Seal.Selector
		e.CV = s.Seal.ChainValidation
	}
	return e
}

// resultKey identifies a validation result by the newest seal's signer and
// the message content.
func resultKey(newest *Seal, message []byte) string {
	sum := sha256.Sum256(message)
	return newest.Domain + "|" + strings.ToLower(newest.Selector) + "|" + hex.EncodeToString(sum[:])
}
