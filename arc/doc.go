// Package arc validates and creates Authenticated Received Chain (ARC)
// header sets per RFC 8617.
//
// ARC lets intermediaries that modify messages, such as mailing lists,
// record the authentication results they observed. Each hop adds a set of
// three headers sharing an instance number i=:
//   - ARC-Authentication-Results: the results observed by the hop
//   - ARC-Message-Signature: a DKIM-style signature over the message
//   - ARC-Seal: a signature over all ARC sets up to and including its own
//
// # Validating
//
//	v, err := arc.NewValidator(resolver, arc.DefaultConfig(), arc.WithLogger(logger))
//	res, err := v.Validate(ctx, sessionID, message)
//	if res.Result == arc.StatusPass {
//	    // every hop's signatures verified
//	}
//
// The result is none without ARC headers, permerror for malformed headers or
// a broken instance sequence, temperror when a key lookup failed
// temporarily, and fail otherwise unless every signature verified.
// Keys and results are cached according to the record TTLs.
//
// # Sealing
//
//	sealer := arc.Sealer{Domain: "example.com", Selector: "arc1", PrivateKey: key}
//	set, err := sealer.Seal(message, "mx.example.com", "spf=pass; dkim=pass", arc.ChainValidationPass)
//	message = set.Prepend(message)
//
// # References
//
//   - RFC 8617: The Authenticated Received Chain (ARC) Protocol
//   - RFC 6376: DomainKeys Identified Mail (DKIM) Signatures
//   - RFC 8463: A New Cryptographic Signature Method for DKIM
package arc
