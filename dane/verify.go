package dane

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/metrics"
)

// Verify checks the certificate chain presented by hostname, leaf first and
// in DER, against the host's TLSA records.
//
// On success the result lists the matching records. If records were found
// but none matched, both the result and a KindCertificateVerificationFailed
// error are returned. Other failures return a nil result and an *Error.
func (v *Verifier) Verify(ctx context.Context, sessionID, hostname string, chain [][]byte) (*VerificationResult, error) {
	start := time.Now()
	log := v.logger.With(zap.String("session_id", sessionID), zap.String("host", hostname))
	res, err := v.verify(ctx, hostname, chain, log)
	return v.finish(log, start, res, err)
}

// finish records the outcome of a verification in metrics and the log.
func (v *Verifier) finish(log *zap.Logger, start time.Time, res *VerificationResult, err error) (*VerificationResult, error) {
	if res != nil {
		res.VerificationTime = time.Since(start)
	}

	switch {
	case err == nil:
		v.metrics.RecordValidation(metrics.OutcomeSuccess)
		log.Info("DANE verification complete",
			zap.Stringers("usages", res.UsageTypes),
			zap.Int("records", res.TLSARecordsProcessed),
			zap.Int("matched", len(res.Matched)),
			zap.Duration("elapsed", res.VerificationTime))
	case errors.Is(err, ErrNoTLSARecords):
		v.metrics.RecordValidation(metrics.OutcomeNone)
		log.Debug("no TLSA records")
	default:
		v.metrics.RecordValidation(metrics.OutcomeFailure)
		var derr *Error
		if errors.As(err, &derr) {
			log.Warn("DANE verification failed", derr.Fields()...)
		} else {
			log.Warn("DANE verification failed", zap.Error(err))
		}
	}
	return res, err
}

// verify looks up the records of hostname before looking at the chain, so a
// host without DANE is reported as such whatever it presented.
func (v *Verifier) verify(ctx context.Context, hostname string, chain [][]byte, log *zap.Logger) (*VerificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, v.config.VerificationTimeout)
	defer cancel()

	set, err := v.lookup(ctx, hostname, log)
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, &Error{
			Kind:   KindOperationTimeout,
			Host:   hostname,
			Reason: "verification exceeded " + v.config.VerificationTimeout.String(),
			Err:    ctxErr,
		}
	}
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, &Error{Kind: KindNoTLSARecords, Host: dns.TLSAName(v.config.Port, v.config.Protocol, hostname)}
	}
	return v.verifySet(set, chain)
}

// verifySet matches chain against the records of set.
func (v *Verifier) verifySet(set *TLSARecordSet, chain [][]byte) (*VerificationResult, error) {
	if len(chain) == 0 {
		return nil, &Error{Kind: KindNoCertificatesProvided, Host: set.Hostname}
	}
	certs := make([]*x509.Certificate, len(chain))
	for i, der := range chain {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, &Error{
				Kind:   KindCertificateProcessingError,
				Host:   set.Hostname,
				Reason: fmt.Sprintf("certificate %d", i),
				Err:    err,
			}
		}
		certs[i] = c
	}

	verifyStart := time.Now()
	res := &VerificationResult{
		CertificatesVerified: len(certs),
		TLSARecordsProcessed: len(set.Records),
		DNSSECValidated:      set.DNSSECValidated,
	}
	var errs []error
	for _, r := range set.Records {
		ok, err := v.verifyRecord(r, certs, set.Hostname)
		if err != nil {
			errs = append(errs, fmt.Errorf("tlsa %s: %w", r, err))
		}
		if ok {
			res.Matched = append(res.Matched, r)
		}
	}
	v.metrics.AddVerifyTime(time.Since(verifyStart))

	if len(res.Matched) == 0 {
		res.Message = fmt.Sprintf("no match among %d TLSA records for %d certificates", len(set.Records), len(certs))
		return res, &Error{
			Kind:   KindCertificateVerificationFailed,
			Host:   set.Name,
			Reason: res.Message,
			Err:    errors.Join(errs...),
		}
	}

	res.Success = true
	for _, r := range res.Matched {
		res.UsageTypes = append(res.UsageTypes, r.Usage)
		res.Selectors = append(res.Selectors, r.Selector)
		res.MatchingTypes = append(res.MatchingTypes, r.MatchType)
	}
	res.UsageTypes = sortedSet(res.UsageTypes)
	res.Selectors = sortedSet(res.Selectors)
	res.MatchingTypes = sortedSet(res.MatchingTypes)
	res.Message = fmt.Sprintf("%d of %d TLSA records matched", len(res.Matched), len(set.Records))
	return res, nil
}

func sortedSet[T cmp.Ordered](l []T) []T {
	slices.Sort(l)
	return slices.Compact(l)
}

// verifyRecord reports whether the chain satisfies r. Certificates are
// expected to have been issued for host.
func (v *Verifier) verifyRecord(r dns.TLSA, certs []*x509.Certificate, host string) (bool, error) {
	leaf := certs[0]

	switch r.Usage {
	case dns.TLSAUsageDANEEE:
		// Only the association matters, not names or validity.
		return match(r, leaf), nil

	case dns.TLSAUsagePKIXEE:
		if !match(r, leaf) {
			return false, nil
		}
		if v.config.PKIXValidation {
			if _, err := v.pkixVerify(certs, host); err != nil {
				return false, err
			}
		}
		return true, nil

	case dns.TLSAUsagePKIXTA:
		if !v.config.PKIXValidation {
			return slices.ContainsFunc(certs, func(c *x509.Certificate) bool { return match(r, c) }), nil
		}
		chains, err := v.pkixVerify(certs, host)
		if err != nil {
			return false, err
		}
		for _, chain := range chains {
			if slices.ContainsFunc(chain, func(c *x509.Certificate) bool { return match(r, c) }) {
				return true, nil
			}
		}
		return false, nil

	case dns.TLSAUsageDANETA:
		var anchor *x509.Certificate
		for _, c := range certs {
			if match(r, c) {
				anchor = c
				break
			}
		}
		// A pinned full certificate need not be sent by the server.
		if anchor == nil && r.Selector == dns.TLSASelectorCert && r.MatchType == dns.TLSAMatchTypeFull {
			c, err := x509.ParseCertificate(r.CertAssoc)
			if err != nil {
				return false, fmt.Errorf("parsing pinned trust anchor: %w", err)
			}
			anchor = c
		}
		if anchor == nil {
			return false, nil
		}
		if anchor == leaf {
			return true, nil
		}
		if err := v.anchorVerify(anchor, certs, host); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// pkixVerify validates the chain against the configured roots.
func (v *Verifier) pkixVerify(certs []*x509.Certificate, host string) ([][]*x509.Certificate, error) {
	return certs[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         v.config.Roots,
		Intermediates: intermediates(certs),
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
}

// anchorVerify validates the leaf up to a DANE-TA trust anchor.
func (v *Verifier) anchorVerify(anchor *x509.Certificate, certs []*x509.Certificate, host string) error {
	roots := x509.NewCertPool()
	roots.AddCert(anchor)
	_, err := certs[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: intermediates(certs),
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

func intermediates(certs []*x509.Certificate) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range certs[1:] {
		pool.AddCert(c)
	}
	return pool
}

// match reports whether cert matches the association data of r.
func match(r dns.TLSA, cert *x509.Certificate) bool {
	var data []byte
	switch r.Selector {
	case dns.TLSASelectorCert:
		data = cert.Raw
	case dns.TLSASelectorSPKI:
		data = cert.RawSubjectPublicKeyInfo
	default:
		return false
	}

	switch r.MatchType {
	case dns.TLSAMatchTypeFull:
		return bytes.Equal(data, r.CertAssoc)
	case dns.TLSAMatchTypeSHA256:
		h := sha256.Sum256(data)
		return bytes.Equal(h[:], r.CertAssoc)
	case dns.TLSAMatchTypeSHA512:
		h := sha512.Sum512(data)
		return bytes.Equal(h[:], r.CertAssoc)
	}
	return false
}
