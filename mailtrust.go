// Mailtrust authenticates email and its transport: ARC chains (RFC 8617),
// DMARC policies (RFC 7489) and DANE for SMTP (RFC 7672).
//
// # Engine
//
// An Engine wires the validators to one resolver, one set of caches and a
// metrics collector:
//
//	cfg, err := config.Load("/etc/mailtrust/mailtrust.yaml")
//	engine, err := mailtrust.New(mailtrust.NewResolver(cfg), cfg,
//	    mailtrust.WithLogger(logger),
//	    mailtrust.WithReportSink(queue))
//
//	res, err := engine.Check(ctx, sessionID, &mailtrust.Message{
//	    Raw:        raw,
//	    FromDomain: "example.com",
//	    DKIM:       dkimResults,
//	    SPF:        spfResult,
//	})
//	header := "Authentication-Results: " + res.AuthenticationResults("mx.example.net")
//
// Before delivering to a host, authenticate its TLS certificate:
//
//	tlsConfig, err := engine.DANE.TLSClientConfig(ctx, sessionID, "mx.example.com")
//
// # Packages
//
// The validators can also be used on their own: see packages arc, dmarc
// and dane. DKIM and SPF verification happen upstream; packages dkim and
// spf hold their results.
package mailtrust

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/synqronlabs/mailtrust/arc"
	"github.com/synqronlabs/mailtrust/config"
	"github.com/synqronlabs/mailtrust/dane"
	"github.com/synqronlabs/mailtrust/dkim"
	"github.com/synqronlabs/mailtrust/dmarc"
	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/metrics"
	"github.com/synqronlabs/mailtrust/report"
	"github.com/synqronlabs/mailtrust/spf"
)

// Engine holds the validators sharing a resolver and metrics collector. It
// is safe for concurrent use.
type Engine struct {
	// Resolver is the resolver all validators query.
	Resolver dns.Resolver

	ARC   *arc.Validator
	DMARC *dmarc.Evaluator
	DANE  *dane.Verifier

	// Metrics exports the counters of all validators, labelled arc, dmarc
	// and dane.
	Metrics *metrics.Collector

	logger *zap.Logger
}

type options struct {
	logger  *zap.Logger
	reports report.Sink
}

// Option configures optional Engine collaborators.
type Option func(*options)

// WithLogger sets the logger of the engine and its validators.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReportSink sets where DMARC report entries are submitted.
func WithReportSink(s report.Sink) Option {
	return func(o *options) { o.reports = s }
}

// NewResolver returns the resolver described by cfg.DNS.
func NewResolver(cfg *config.Config) dns.Resolver {
	if cfg.DNS.System {
		return dns.NewStdResolver()
	}
	return dns.NewResolver(cfg.ResolverConfig())
}

// New returns an engine whose validators query resolver. With cfg.DNS.Dedup
// set, concurrent identical lookups across validators are collapsed.
func New(resolver dns.Resolver, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.DNS.Dedup {
		resolver = dns.NewDedup(resolver)
	}

	e := &Engine{
		Resolver: resolver,
		Metrics:  metrics.NewCollector(),
		logger:   o.logger,
	}

	arcMetrics := metrics.NewValidator()
	var err error
	e.ARC, err = arc.NewValidator(resolver, cfg.ARCConfig(),
		arc.WithLogger(o.logger),
		arc.WithMetrics(arcMetrics))
	if err != nil {
		return nil, fmt.Errorf("arc: %w", err)
	}
	e.Metrics.Register("arc", arcMetrics)

	dmarcMetrics := metrics.NewValidator()
	dmarcOpts := []dmarc.Option{
		dmarc.WithLogger(o.logger),
		dmarc.WithMetrics(dmarcMetrics),
	}
	if o.reports != nil {
		dmarcOpts = append(dmarcOpts, dmarc.WithReportSink(o.reports))
	}
	e.DMARC, err = dmarc.NewEvaluator(resolver, cfg.DMARCConfig(), dmarcOpts...)
	if err != nil {
		return nil, fmt.Errorf("dmarc: %w", err)
	}
	e.Metrics.Register("dmarc", dmarcMetrics)

	daneConfig, err := cfg.DANEConfig()
	if err != nil {
		return nil, err
	}
	daneMetrics := metrics.NewValidator()
	e.DANE, err = dane.NewVerifier(resolver, daneConfig,
		dane.WithLogger(o.logger),
		dane.WithMetrics(daneMetrics))
	if err != nil {
		return nil, fmt.Errorf("dane: %w", err)
	}
	e.Metrics.Register("dane", daneMetrics)

	return e, nil
}

// Message is a received message with the results of the upstream DKIM and
// SPF checks.
type Message struct {
	// Raw is the message as received, headers and body. If empty, ARC is
	// not validated.
	Raw []byte

	// FromDomain is the domain of the RFC5322.From address.
	FromDomain string

	DKIM []dkim.Result

	// SPF may be nil if SPF was not checked.
	SPF *spf.Result
}

// MessageResult holds the verdicts on one message.
type MessageResult struct {
	// ARC is nil if the message had no raw content to validate.
	ARC   *arc.ValidationResult
	DMARC *dmarc.EvaluationResult

	DKIM []dkim.Result
	SPF  *spf.Result
}

// AuthenticationResults renders the results as an Authentication-Results
// header body for authServID.
func (r *MessageResult) AuthenticationResults(authServID string) string {
	return AuthenticationResults(authServID, r.DKIM, r.SPF, r.ARC, r.DMARC)
}

// Check validates the ARC chain of m and evaluates its DMARC policy. The two
// run concurrently. An error is returned only if either validator could not
// produce a verdict at all, e.g. on timeout or a malformed From domain.
func (e *Engine) Check(ctx context.Context, sessionID string, m *Message) (*MessageResult, error) {
	res := &MessageResult{DKIM: m.DKIM, SPF: m.SPF}

	g, gctx := errgroup.WithContext(ctx)
	if len(m.Raw) > 0 {
		g.Go(func() error {
			r, err := e.ARC.Validate(gctx, sessionID, m.Raw)
			if err != nil {
				return fmt.Errorf("arc: %w", err)
			}
			res.ARC = r
			return nil
		})
	}
	g.Go(func() error {
		r, err := e.DMARC.Evaluate(gctx, sessionID, m.FromDomain, m.DKIM, m.SPF)
		if err != nil {
			return fmt.Errorf("dmarc: %w", err)
		}
		res.DMARC = r
		return nil
	})
	if err := g.Wait(); err != nil {
		e.logger.Warn("message check failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return res, nil
}
