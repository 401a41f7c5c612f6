// Package dmarc implements Domain-based Message Authentication, Reporting,
// and Conformance (DMARC) policy evaluation per RFC 7489.
//
// DMARC authenticates the domain of the RFC5322.From header by requiring
// that SPF or DKIM passed for a domain aligned with it. The From domain's
// owner publishes a policy as a TXT record at "_dmarc.<domain>" telling
// receivers what to do with messages that fail.
//
// DKIM and SPF are verified elsewhere; the Evaluator consumes their
// results:
//
//	ev, err := dmarc.NewEvaluator(resolver, dmarc.DefaultConfig(),
//	    dmarc.WithLogger(logger),
//	    dmarc.WithReportSink(queue))
//	res, err := ev.Evaluate(ctx, sessionID, "example.com", dkimResults, spfResult)
//	switch res.Disposition {
//	case dmarc.DispositionReject:
//	    // reply 550
//	case dmarc.DispositionQuarantine:
//	    // deliver to junk
//	}
//
// # Alignment
//
// Alignment is "strict" (exact match) or "relaxed" (organizational domain
// match), chosen per mechanism by the adkim= and aspf= tags. Organizational
// domains come from the Public Suffix List:
//
//	example.com       -> example.com
//	sub.example.com   -> example.com
//	sub.example.co.uk -> example.co.uk
//
// # Sampling
//
// The pct= tag applies the policy to a share of failing messages. The
// sample is drawn from a hash of the session ID and From domain, so the
// decision for a message is repeatable.
//
// # Reports
//
// Report documents are not generated here. Evaluations of domains with rua=
// or ruf= are submitted to a report.Sink for the report generator.
//
// # References
//
//   - RFC 7489: Domain-based Message Authentication, Reporting, and Conformance (DMARC)
//   - RFC 8601: Message Header Field for Indicating Message Authentication Status
package dmarc
