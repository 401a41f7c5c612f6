// Package dane verifies TLS server certificates with DNS-Based
// Authentication of Named Entities (DANE), per RFC 6698 and its SMTP
// profile RFC 7672.
//
// A host publishes TLSA records at "_<port>._<proto>.<host>" naming the
// certificate or public key its TLS server presents, or a trust anchor
// that issued it. The records are only trusted if the DNS answer was
// DNSSEC-authenticated, so the resolver must forward the AD flag of a
// validating upstream.
//
//	v, err := dane.NewVerifier(resolver, dane.DefaultConfig(), dane.WithLogger(logger))
//	config, err := v.TLSClientConfig(ctx, sessionID, "mx.example.com")
//	if errors.Is(err, dane.ErrNoTLSARecords) {
//	    // no DANE, use opportunistic TLS
//	}
//	conn := tls.Client(rawConn, config)
//
// Certificate usages:
//
//	0 PKIX-TA  a certificate in the chain matches; PKIX validation optional
//	1 PKIX-EE  the leaf matches; PKIX validation optional
//	2 DANE-TA  a certificate in the chain, or the pinned certificate, is the
//	           trust anchor the leaf must validate to
//	3 DANE-EE  the leaf matches; names and expiry are not checked
package dane
