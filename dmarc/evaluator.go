package dmarc

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	mdns "github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/synqronlabs/mailtrust/autherr"
	"github.com/synqronlabs/mailtrust/cache"
	"github.com/synqronlabs/mailtrust/dkim"
	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/metrics"
	"github.com/synqronlabs/mailtrust/report"
	"github.com/synqronlabs/mailtrust/spf"
)

// Config configures an Evaluator.
type Config struct {
	// DNSTimeout bounds each record lookup.
	DNSTimeout time.Duration

	// EvaluationTimeout bounds a whole Evaluate call.
	EvaluationTimeout time.Duration

	// EnableDNSCache enables the record cache.
	EnableDNSCache bool

	// DNSCacheTTL overrides the record TTL for found records when positive.
	DNSCacheTTL time.Duration

	// NegativeCacheTTL is how long absent or unusable records are cached.
	NegativeCacheTTL time.Duration

	// StrictPolicy turns multiple DMARC records into a permerror instead of
	// treating the domain as not publishing DMARC.
	StrictPolicy bool

	// GenerateAggregateReports submits aggregate entries for domains with rua=.
	GenerateAggregateReports bool

	// GenerateForensicReports submits forensic entries for failures when the
	// domain has ruf= and fo= selects the failure.
	GenerateForensicReports bool

	// CacheBackend selects the cache implementation, see cache.New.
	CacheBackend string

	// CacheSize bounds the record cache.
	CacheSize int
}

// DefaultConfig returns the default evaluator configuration.
func DefaultConfig() Config {
	return Config{
		DNSTimeout:               10 * time.Second,
		EvaluationTimeout:        30 * time.Second,
		EnableDNSCache:           true,
		NegativeCacheTTL:         5 * time.Minute,
		GenerateAggregateReports: true,
		GenerateForensicReports:  true,
		CacheBackend:             cache.BackendMemory,
		CacheSize:                cache.DefaultMaxSize,
	}
}

// Evaluator evaluates messages against DMARC policies. It is safe for
// concurrent use.
type Evaluator struct {
	config   Config
	resolver dns.Resolver
	records  cache.Cache[string, *lookupResult]
	metrics  *metrics.Validator
	logger   *zap.Logger
	reports  report.Sink
}

// Option configures optional Evaluator collaborators.
type Option func(*Evaluator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) { e.logger = l.Named("dmarc") }
}

// WithMetrics sets the counters updated by the evaluator.
func WithMetrics(m *metrics.Validator) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithReportSink sets where report entries are submitted. Without one, no
// entries are produced.
func WithReportSink(s report.Sink) Option {
	return func(e *Evaluator) { e.reports = s }
}

// NewEvaluator returns an evaluator that looks up records through resolver.
// Zero durations in config are replaced by their defaults.
func NewEvaluator(resolver dns.Resolver, config Config, opts ...Option) (*Evaluator, error) {
	def := DefaultConfig()
	if config.DNSTimeout <= 0 {
		config.DNSTimeout = def.DNSTimeout
	}
	if config.EvaluationTimeout <= 0 {
		config.EvaluationTimeout = def.EvaluationTimeout
	}
	if config.NegativeCacheTTL <= 0 {
		config.NegativeCacheTTL = def.NegativeCacheTTL
	}

	e := &Evaluator{
		config:   config,
		resolver: resolver,
		metrics:  metrics.NewValidator(),
		logger:   zap.NewNop(),
	}
	if config.EnableDNSCache {
		var err error
		if e.records, err = cache.New[*lookupResult](config.CacheBackend, config.CacheSize); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Metrics returns the evaluator's counters.
func (e *Evaluator) Metrics() *metrics.Validator {
	return e.metrics
}

// Config returns the effective configuration.
func (e *Evaluator) Config() Config {
	return e.config
}

// evaluation holds the state of one Evaluate call.
type evaluation struct {
	e         *Evaluator
	sessionID string
	log       *zap.Logger
	dnsTime   time.Duration
}

// Evaluate evaluates the DMARC policy of fromDomain, the domain of the
// RFC5322.From address, given the results of the DKIM signatures on the
// message and of the SPF check. spfResult may be nil if SPF was not
// checked.
//
// Policy outcomes, including malformed records and DNS failures, are
// reported in the result. An error is returned only for an unusable
// fromDomain, a cancelled context, or when EvaluationTimeout is exceeded
// (*autherr.OperationTimeout).
func (e *Evaluator) Evaluate(ctx context.Context, sessionID, fromDomain string, dkimResults []dkim.Result, spfResult *spf.Result) (*EvaluationResult, error) {
	start := time.Now()
	run := &evaluation{
		e:         e,
		sessionID: sessionID,
		log:       e.logger.With(zap.String("session_id", sessionID)),
	}

	from := normalizeDomain(fromDomain)
	if err := checkFromDomain(from); err != nil {
		e.metrics.RecordValidation(metrics.OutcomeFailure)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.EvaluationTimeout)
	defer cancel()

	recordDomain, lr := run.policyDiscovery(ctx, from)
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.metrics.RecordValidation(metrics.OutcomeFailure)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			err := &autherr.OperationTimeout{
				Operation: "dmarc evaluation",
				Limit:     e.config.EvaluationTimeout,
				Elapsed:   time.Since(start),
			}
			run.log.Warn("DMARC evaluation timed out", err.Fields()...)
			return nil, err
		}
		return nil, ctxErr
	}

	policyStart := time.Now()
	res := &EvaluationResult{
		Domain:          from,
		RecordDomain:    recordDomain,
		Policy:          PolicyNone,
		Disposition:     DispositionAccept,
		RecordAuthentic: lr.authentic,
		DNSLookupTime:   run.dnsTime,
	}

	switch {
	case lr.status != StatusNone:
		res.Result = lr.status
		res.Err = lr.err
	case !lr.found():
		res.Result = StatusNone
		if errors.Is(lr.err, ErrMultipleRecords) {
			res.Err = lr.err
		}
	default:
		res.Record = lr.record
		res.RawRecord = lr.txt
		run.apply(res, dkimResults, spfResult)
	}
	res.PolicyEvaluationTime = time.Since(policyStart)
	res.TotalEvaluationTime = time.Since(start)

	if res.Record != nil {
		run.submitReports(res, dkimResults, spfResult)
	}

	switch res.Result {
	case StatusPass:
		e.metrics.RecordValidation(metrics.OutcomeSuccess)
	case StatusNone:
		e.metrics.RecordValidation(metrics.OutcomeNone)
	default:
		e.metrics.RecordValidation(metrics.OutcomeFailure)
	}
	e.metrics.AddVerifyTime(res.PolicyEvaluationTime)

	fields := []zap.Field{
		zap.String("domain", res.Domain),
		zap.String("record_domain", res.RecordDomain),
		zap.Stringer("result", res.Result),
		zap.Stringer("policy", res.Policy),
		zap.Stringer("disposition", res.Disposition),
		zap.Bool("dkim_aligned", res.DKIMAligned),
		zap.Bool("spf_aligned", res.SPFAligned),
		zap.Duration("elapsed", res.TotalEvaluationTime),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	run.log.Info("DMARC evaluation complete", fields...)

	return res, nil
}

// checkFromDomain rejects From domains DMARC cannot be evaluated for.
func checkFromDomain(domain string) error {
	reason := ""
	switch {
	case domain == "":
		reason = "missing From domain"
	case strings.ContainsAny(domain, "@ \t"):
		reason = "From domain is an address, not a domain"
	case net.ParseIP(domain) != nil:
		reason = "From domain is an IP address"
	case !strings.Contains(domain, "."):
		reason = "From domain is not fully qualified"
	default:
		if _, ok := mdns.IsDomainName(domain); !ok {
			reason = "From domain is not a valid domain name"
		}
	}
	if reason == "" {
		return nil
	}
	return &autherr.InvalidMessageFormat{Reason: reason + ": " + domain, Component: "dmarc"}
}

// apply computes alignment, the result and the disposition for a found
// record.
func (run *evaluation) apply(res *EvaluationResult, dkimResults []dkim.Result, spfResult *spf.Result) {
	r := res.Record
	temporary := false

	for _, d := range dkimResults {
		a := DKIMAlignment{
			Domain:     normalizeDomain(d.Domain),
			Selector:   d.Selector,
			FromDomain: res.Domain,
			Mode:       r.ADKIM,
			Passed:     d.Status == dkim.StatusPass,
		}
		a.Aligned = DomainsAligned(res.Domain, a.Domain, r.ADKIM)
		if a.Passed && a.Aligned {
			res.DKIMAligned = true
		}
		if d.Status == dkim.StatusTemperror {
			temporary = true
		}
		res.DKIM = append(res.DKIM, a)
	}

	if spfResult != nil {
		a := &SPFAlignment{
			Domain:     normalizeDomain(spfResult.Domain),
			FromDomain: res.Domain,
			Mode:       r.ASPF,
			Passed:     spfResult.Status == spf.StatusPass,
		}
		a.Aligned = DomainsAligned(res.Domain, a.Domain, r.ASPF)
		res.SPFAligned = a.Passed && a.Aligned
		if spfResult.Status == spf.StatusTemperror {
			temporary = true
		}
		res.SPF = a
	}

	if res.DKIMAligned || res.SPFAligned {
		res.Result = StatusPass
		return
	}
	if temporary {
		// An aligned pass may still come from a retry.
		res.Result = StatusTemperror
		return
	}

	res.Result = StatusFail
	res.Sampled = sampled(run.sessionID, res.Domain, r.Percentage)
	if res.Sampled {
		res.Policy = r.EffectivePolicy(res.RecordDomain != res.Domain)
		res.Disposition = dispositionFor(res.Policy)
	}
}

// sampled reports whether a message falls within a pct= sample. The
// decision depends only on the session and domain, so re-evaluating a
// message gives the same answer.
func sampled(sessionID, domain string, pct int) bool {
	switch {
	case pct >= 100:
		return true
	case pct <= 0:
		return false
	}
	d := xxhash.New()
	d.WriteString(sessionID)
	d.Write([]byte{0})
	d.WriteString(domain)
	return d.Sum64()%100 < uint64(pct)
}

// submitReports hands the evaluation to the report sink, if the domain asked
// for reports and they are enabled. Submission never blocks and its
// failures do not affect the result.
func (run *evaluation) submitReports(res *EvaluationResult, dkimResults []dkim.Result, spfResult *spf.Result) {
	e := run.e
	if e.reports == nil {
		return
	}
	r := res.Record

	if e.config.GenerateAggregateReports && len(r.AggregateReportAddresses) > 0 {
		entry := newEntry(run.sessionID, res, report.KindAggregate)
		entry.Addresses = uriAddresses(r.AggregateReportAddresses)
		entry.Interval = r.ReportInterval()
		run.submit(entry)
	}

	if e.config.GenerateForensicReports && res.Result == StatusFail && len(r.FailureReportAddresses) > 0 {
		dkimFailed := false
		for _, d := range dkimResults {
			if d.Status == dkim.StatusFail || d.Status == dkim.StatusPermerror {
				dkimFailed = true
			}
		}
		spfFailed := spfResult != nil && (spfResult.Status == spf.StatusFail || spfResult.Status == spf.StatusSoftfail)
		if r.WantsFailureReport(dkimFailed, spfFailed) {
			entry := newEntry(run.sessionID, res, report.KindForensic)
			entry.Addresses = uriAddresses(r.FailureReportAddresses)
			entry.FailureOptions = r.FailureReportingOptions
			entry.Formats = r.ReportingFormat
			run.submit(entry)
		}
	}
}

func (run *evaluation) submit(entry *report.Entry) {
	if err := run.e.reports.Submit(entry); err != nil {
		run.log.Warn("report entry dropped",
			zap.Stringer("kind", entry.Kind),
			zap.String("domain", entry.RecordDomain),
			zap.Error(err))
		return
	}
	run.log.Debug("report entry submitted", zap.Stringer("kind", entry.Kind), zap.String("id", entry.ID))
}

func newEntry(sessionID string, res *EvaluationResult, kind report.Kind) *report.Entry {
	now := time.Now()
	entry := &report.Entry{
		ID:           report.NewID(now),
		Kind:         kind,
		Time:         now,
		SessionID:    sessionID,
		FromDomain:   res.Domain,
		RecordDomain: res.RecordDomain,
		Result:       res.Result.String(),
		Policy:       res.Policy.String(),
		Disposition:  res.Disposition.String(),
		Sampled:      res.Sampled,
	}
	for _, d := range res.DKIM {
		result := "fail"
		if d.Passed {
			result = "pass"
		}
		entry.DKIM = append(entry.DKIM, report.AuthResult{Domain: d.Domain, Selector: d.Selector, Result: result, Aligned: d.Aligned})
	}
	if res.SPF != nil {
		result := "fail"
		if res.SPF.Passed {
			result = "pass"
		}
		entry.SPF = &report.AuthResult{Domain: res.SPF.Domain, Result: result, Aligned: res.SPF.Aligned}
	}
	return entry
}
