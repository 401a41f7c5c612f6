package dane

import (
	"context"
	"crypto/tls"
	"time"

	"go.uber.org/zap"
)

// VerifyConnection verifies the peer certificates of an established TLS
// connection to hostname.
func (v *Verifier) VerifyConnection(ctx context.Context, sessionID, hostname string, cs tls.ConnectionState) (*VerificationResult, error) {
	return v.Verify(ctx, sessionID, hostname, peerChain(cs))
}

func peerChain(cs tls.ConnectionState) [][]byte {
	chain := make([][]byte, len(cs.PeerCertificates))
	for i, c := range cs.PeerCertificates {
		chain[i] = c.Raw
	}
	return chain
}

// TLSClientConfig returns a client config for connecting to hostname that
// authenticates the server with its TLSA records instead of PKIX. If the
// host has no TLSA records, it returns an error matching ErrNoTLSARecords
// and the caller decides whether to fall back to opportunistic TLS.
//
// The records are looked up before returning, so a DNSSEC failure is
// reported here rather than during the handshake. The handshake verifies
// against those records and does not use ctx.
func (v *Verifier) TLSClientConfig(ctx context.Context, sessionID, hostname string) (*tls.Config, error) {
	set, err := v.TLSALookup(ctx, hostname)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, &Error{Kind: KindNoTLSARecords, Host: hostname}
	}

	config := &tls.Config{
		ServerName: set.Hostname,
		MinVersion: tls.VersionTLS12,
		// Verification is done by VerifyConnection below.
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			start := time.Now()
			log := v.logger.With(zap.String("session_id", sessionID), zap.String("host", set.Hostname))
			res, err := v.verifySet(set, peerChain(cs))
			_, err = v.finish(log, start, res, err)
			return err
		},
	}
	return config, nil
}
