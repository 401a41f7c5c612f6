package dane

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/synqronlabs/mailtrust/dns"
)

const (
	testHost = "mx.example.com"
	testName = "_25._tcp.mx.example.com."
)

// testPKI is a CA and a leaf certificate it issued.
type testPKI struct {
	ca, leaf *x509.Certificate
	leafKey  *ecdsa.PrivateKey
}

func newTestPKI(t testing.TB, host string) *testPKI {
	t.Helper()
	now := time.Now()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA for " + host},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatal(err)
	}
	return &testPKI{ca: ca, leaf: leaf, leafKey: leafKey}
}

func (p *testPKI) chain(withCA bool) [][]byte {
	if withCA {
		return [][]byte{p.leaf.Raw, p.ca.Raw}
	}
	return [][]byte{p.leaf.Raw}
}

func (p *testPKI) tlsCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: p.chain(true),
		PrivateKey:  p.leafKey,
	}
}

func tlsa(usage dns.TLSAUsage, selector dns.TLSASelector, mt dns.TLSAMatchType, cert *x509.Certificate) dns.TLSA {
	data := cert.Raw
	if selector == dns.TLSASelectorSPKI {
		data = cert.RawSubjectPublicKeyInfo
	}
	switch mt {
	case dns.TLSAMatchTypeSHA256:
		h := sha256.Sum256(data)
		data = h[:]
	case dns.TLSAMatchTypeSHA512:
		h := sha512.Sum512(data)
		data = h[:]
	}
	return dns.TLSA{Usage: usage, Selector: selector, MatchType: mt, CertAssoc: data}
}

func testResolver(records ...dns.TLSA) dns.MockResolver {
	return dns.MockResolver{
		TLSA:         map[string][]dns.TLSA{testName: records},
		TTL:          time.Hour,
		AllAuthentic: true,
	}
}

func newTestVerifier(t testing.TB, resolver dns.Resolver, config Config, opts ...Option) *Verifier {
	t.Helper()
	v, err := NewVerifier(resolver, config, opts...)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestVerify(t *testing.T) {
	pki := newTestPKI(t, testHost)
	other := newTestPKI(t, "other.example")

	tests := []struct {
		name       string
		records    []dns.TLSA
		chain      [][]byte
		wantErr    error
		wantUsages []dns.TLSAUsage
	}{
		{
			name:       "dane-ee spki sha256",
			records:    []dns.TLSA{tlsa(3, 1, 1, pki.leaf)},
			chain:      pki.chain(false),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsageDANEEE},
		},
		{
			name:       "dane-ee full certificate",
			records:    []dns.TLSA{tlsa(3, 0, 0, pki.leaf)},
			chain:      pki.chain(true),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsageDANEEE},
		},
		{
			name:       "dane-ee certificate sha512",
			records:    []dns.TLSA{tlsa(3, 0, 2, pki.leaf)},
			chain:      pki.chain(false),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsageDANEEE},
		},
		{
			name:       "pkix-ee spki sha256",
			records:    []dns.TLSA{tlsa(1, 1, 1, pki.leaf)},
			chain:      pki.chain(true),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsagePKIXEE},
		},
		{
			name:       "dane-ta sent in chain",
			records:    []dns.TLSA{tlsa(2, 1, 1, pki.ca)},
			chain:      pki.chain(true),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsageDANETA},
		},
		{
			name:       "dane-ta pinned full certificate",
			records:    []dns.TLSA{tlsa(2, 0, 0, pki.ca)},
			chain:      pki.chain(false),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsageDANETA},
		},
		{
			name:    "dane-ta digest not sent",
			records: []dns.TLSA{tlsa(2, 1, 1, pki.ca)},
			chain:   pki.chain(false),
			wantErr: ErrCertificateVerificationFailed,
		},
		{
			name:    "dane-ta leaf for other host",
			records: []dns.TLSA{tlsa(2, 1, 1, other.ca)},
			chain:   other.chain(true),
			wantErr: ErrCertificateVerificationFailed,
		},
		{
			name:    "dane-ta leaf not issued by anchor",
			records: []dns.TLSA{tlsa(2, 0, 0, other.ca)},
			chain:   pki.chain(false),
			wantErr: ErrCertificateVerificationFailed,
		},
		{
			name:       "pkix-ta without pkix validation",
			records:    []dns.TLSA{tlsa(0, 0, 1, pki.ca)},
			chain:      pki.chain(true),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsagePKIXTA},
		},
		{
			name:    "no match",
			records: []dns.TLSA{tlsa(3, 1, 1, other.leaf), tlsa(3, 1, 1, pki.ca)},
			chain:   pki.chain(true),
			wantErr: ErrCertificateVerificationFailed,
		},
		{
			name:    "only unusable records",
			records: []dns.TLSA{{Usage: 7, Selector: 1, MatchType: 1, CertAssoc: make([]byte, 32)}},
			chain:   pki.chain(false),
			wantErr: ErrInvalidTLSARecord,
		},
		{
			name: "unusable records skipped",
			records: []dns.TLSA{
				{Usage: 3, Selector: 1, MatchType: 1, CertAssoc: []byte{1, 2, 3}},
				{Usage: 3, Selector: 4, MatchType: 1, CertAssoc: make([]byte, 32)},
				tlsa(3, 1, 1, pki.leaf),
			},
			chain:      pki.chain(false),
			wantUsages: []dns.TLSAUsage{dns.TLSAUsageDANEEE},
		},
		{
			name:    "no records",
			chain:   pki.chain(false),
			wantErr: ErrNoTLSARecords,
		},
		{
			name:    "no certificates",
			records: []dns.TLSA{tlsa(3, 1, 1, pki.leaf)},
			wantErr: ErrNoCertificatesProvided,
		},
		{
			name:    "no records and no certificates",
			wantErr: ErrNoTLSARecords,
		},
		{
			name:    "malformed certificate",
			records: []dns.TLSA{tlsa(3, 1, 1, pki.leaf)},
			chain:   [][]byte{pki.leaf.Raw, {0x30, 0x03, 0x01}},
			wantErr: ErrCertificateProcessingError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, testResolver(tt.records...), DefaultConfig())
			res, err := v.Verify(context.Background(), "session-1", testHost, tt.chain)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				if res != nil && res.Success {
					t.Error("failed verification reports success")
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if !res.Success || !res.DNSSECValidated {
				t.Errorf("result = %+v", res)
			}
			if diff := cmp.Diff(tt.wantUsages, res.UsageTypes); diff != "" {
				t.Errorf("usages mismatch (-want +got):\n%s", diff)
			}
			if res.CertificatesVerified != len(tt.chain) {
				t.Errorf("certificates verified = %d, want %d", res.CertificatesVerified, len(tt.chain))
			}
		})
	}
}

func TestVerifyMatchedTypes(t *testing.T) {
	pki := newTestPKI(t, testHost)
	other := newTestPKI(t, "other.example")
	records := []dns.TLSA{
		tlsa(3, 1, 1, pki.leaf),
		tlsa(3, 0, 2, pki.leaf),
		tlsa(2, 1, 1, pki.ca),
		tlsa(3, 1, 1, other.leaf),
	}
	v := newTestVerifier(t, testResolver(records...), DefaultConfig())

	res, err := v.Verify(context.Background(), "s", testHost, pki.chain(true))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := &VerificationResult{
		Success:              true,
		CertificatesVerified: 2,
		TLSARecordsProcessed: 4,
		DNSSECValidated:      true,
		UsageTypes:           []dns.TLSAUsage{dns.TLSAUsageDANETA, dns.TLSAUsageDANEEE},
		Selectors:            []dns.TLSASelector{dns.TLSASelectorCert, dns.TLSASelectorSPKI},
		MatchingTypes:        []dns.TLSAMatchType{dns.TLSAMatchTypeSHA256, dns.TLSAMatchTypeSHA512},
		Matched:              records[:3],
	}
	opts := cmpopts.IgnoreFields(VerificationResult{}, "Message", "VerificationTime")
	if diff := cmp.Diff(want, res, opts); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyPKIX(t *testing.T) {
	pki := newTestPKI(t, testHost)
	trusted := x509.NewCertPool()
	trusted.AddCert(pki.ca)

	for _, tt := range []struct {
		name   string
		record dns.TLSA
		roots  *x509.CertPool
		ok     bool
	}{
		{"pkix-ta trusted", tlsa(0, 1, 1, pki.ca), trusted, true},
		{"pkix-ee trusted", tlsa(1, 1, 1, pki.leaf), trusted, true},
		{"pkix-ta untrusted", tlsa(0, 1, 1, pki.ca), x509.NewCertPool(), false},
		{"pkix-ee untrusted", tlsa(1, 1, 1, pki.leaf), x509.NewCertPool(), false},
		// DANE usages ignore the PKIX roots.
		{"dane-ee untrusted", tlsa(3, 1, 1, pki.leaf), x509.NewCertPool(), true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.PKIXValidation = true
			config.Roots = tt.roots
			v := newTestVerifier(t, testResolver(tt.record), config)

			_, err := v.Verify(context.Background(), "s", testHost, pki.chain(true))
			if tt.ok && err != nil {
				t.Errorf("Verify: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrCertificateVerificationFailed) {
				t.Errorf("got %v, want verification failure", err)
			}
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	pki := newTestPKI(t, testHost)
	later := func() time.Time { return time.Now().Add(30 * 24 * time.Hour) }

	// DANE-EE does not check expiry, DANE-TA does.
	v := newTestVerifier(t, testResolver(tlsa(3, 1, 1, pki.leaf)), DefaultConfig(), WithClock(later))
	if _, err := v.Verify(context.Background(), "s", testHost, pki.chain(false)); err != nil {
		t.Errorf("dane-ee with expired certificate: %v", err)
	}
	v = newTestVerifier(t, testResolver(tlsa(2, 1, 1, pki.ca)), DefaultConfig(), WithClock(later))
	if _, err := v.Verify(context.Background(), "s", testHost, pki.chain(true)); !errors.Is(err, ErrCertificateVerificationFailed) {
		t.Errorf("dane-ta with expired certificate: got %v, want verification failure", err)
	}
}

func TestVerifyDNSErrors(t *testing.T) {
	pki := newTestPKI(t, testHost)
	record := tlsa(3, 1, 1, pki.leaf)

	tests := []struct {
		name          string
		resolver      func() dns.MockResolver
		host          string
		wantErr       error
		wantTemporary bool
	}{
		{
			name: "not authenticated",
			resolver: func() dns.MockResolver {
				r := testResolver(record)
				r.Inauthentic = []string{"tlsa " + testName}
				return r
			},
			wantErr: ErrDNSSECValidationFailed,
		},
		{
			name: "bogus",
			resolver: func() dns.MockResolver {
				r := testResolver(record)
				r.Bogus = []string{"tlsa " + testName}
				return r
			},
			wantErr:       ErrDNSSECValidationFailed,
			wantTemporary: true,
		},
		{
			name: "servfail",
			resolver: func() dns.MockResolver {
				r := testResolver(record)
				r.Fail = []string{"tlsa " + testName}
				return r
			},
			wantErr:       ErrDNSLookupFailed,
			wantTemporary: true,
		},
		{
			name: "timeout",
			resolver: func() dns.MockResolver {
				r := testResolver(record)
				r.Timeout = []string{"tlsa " + testName}
				return r
			},
			wantErr:       ErrDNSLookupFailed,
			wantTemporary: true,
		},
		{
			name:     "invalid host name",
			resolver: func() dns.MockResolver { return testResolver(record) },
			host:     "mx example.com",
			wantErr:  ErrDNSLookupFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, tt.resolver(), DefaultConfig())
			host := tt.host
			if host == "" {
				host = testHost
			}
			res, err := v.Verify(context.Background(), "s", host, pki.chain(false))
			if res != nil {
				t.Errorf("got result %+v", res)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			var derr *Error
			if !errors.As(err, &derr) {
				t.Fatalf("%T is not *Error", err)
			}
			if derr.Temporary() != tt.wantTemporary {
				t.Errorf("Temporary() = %v, want %v", derr.Temporary(), tt.wantTemporary)
			}
		})
	}
}

func TestTLSALookup(t *testing.T) {
	pki := newTestPKI(t, testHost)
	records := []dns.TLSA{
		tlsa(3, 1, 1, pki.leaf),
		{Usage: 3, Selector: 1, MatchType: 2, CertAssoc: make([]byte, 32)},
	}
	v := newTestVerifier(t, testResolver(records...), DefaultConfig())
	ctx := context.Background()

	set, err := v.TLSALookup(ctx, "MX.Example.com.")
	if err != nil {
		t.Fatalf("TLSALookup: %v", err)
	}
	want := &TLSARecordSet{
		Hostname:        testHost,
		Name:            testName,
		Port:            25,
		Records:         records[:1],
		Unusable:        1,
		DNSSECValidated: true,
		TTL:             time.Hour,
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Errorf("record set mismatch (-want +got):\n%s", diff)
	}

	set, err = v.TLSALookup(ctx, "mx2.example.com")
	if set != nil || err != nil {
		t.Errorf("lookup without records = %v, %v; want nil, nil", set, err)
	}
}

func TestTLSALookupPort(t *testing.T) {
	pki := newTestPKI(t, testHost)
	resolver := dns.MockResolver{
		TLSA: map[string][]dns.TLSA{
			"_465._tcp.mx.example.com.": {tlsa(3, 1, 1, pki.leaf)},
		},
		AllAuthentic: true,
		TTL:          time.Hour,
	}
	config := DefaultConfig()
	config.Port = 465
	v := newTestVerifier(t, resolver, config)

	if _, err := v.Verify(context.Background(), "s", testHost, pki.chain(false)); err != nil {
		t.Errorf("Verify on port 465: %v", err)
	}
}

type countingResolver struct {
	dns.Resolver
	mu    sync.Mutex
	names map[string]int
}

func (r *countingResolver) LookupTLSA(ctx context.Context, name string) (dns.Result[dns.TLSA], error) {
	r.mu.Lock()
	if r.names == nil {
		r.names = map[string]int{}
	}
	r.names[name]++
	r.mu.Unlock()
	return r.Resolver.LookupTLSA(ctx, name)
}

func (r *countingResolver) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names[name]
}

func TestVerifyCaching(t *testing.T) {
	pki := newTestPKI(t, testHost)
	resolver := &countingResolver{Resolver: testResolver(tlsa(3, 1, 1, pki.leaf))}
	v := newTestVerifier(t, resolver, DefaultConfig())
	ctx := context.Background()

	for range 3 {
		if _, err := v.Verify(ctx, "s", testHost, pki.chain(false)); err != nil {
			t.Fatal(err)
		}
	}
	if n := resolver.count(testName); n != 1 {
		t.Errorf("looked up %d times, want 1", n)
	}
	s := v.Metrics().Snapshot()
	if s.CacheHits != 2 || s.CacheMisses != 1 {
		t.Errorf("cache hits/misses = %d/%d, want 2/1", s.CacheHits, s.CacheMisses)
	}
	if s.TotalValidations != 3 || s.SuccessfulValidations != 3 {
		t.Errorf("validations = %+v", s)
	}

	config := DefaultConfig()
	config.EnableDNSCache = false
	resolver = &countingResolver{Resolver: testResolver(tlsa(3, 1, 1, pki.leaf))}
	v = newTestVerifier(t, resolver, config)
	for range 2 {
		if _, err := v.Verify(ctx, "s", testHost, pki.chain(false)); err != nil {
			t.Fatal(err)
		}
	}
	if n := resolver.count(testName); n != 2 {
		t.Errorf("uncached: looked up %d times, want 2", n)
	}
}

type blockingResolver struct {
	dns.Resolver
}

func (blockingResolver) LookupTLSA(ctx context.Context, name string) (dns.Result[dns.TLSA], error) {
	<-ctx.Done()
	return dns.Result[dns.TLSA]{}, ctx.Err()
}

func TestVerificationTimeout(t *testing.T) {
	pki := newTestPKI(t, testHost)
	config := DefaultConfig()
	config.VerificationTimeout = 20 * time.Millisecond
	v := newTestVerifier(t, blockingResolver{}, config)

	_, err := v.Verify(context.Background(), "s", testHost, pki.chain(false))
	if !errors.Is(err, ErrOperationTimeout) {
		t.Fatalf("got %v, want operation timeout", err)
	}
	var derr *Error
	if !errors.As(err, &derr) || !derr.Temporary() {
		t.Error("timeout is not temporary")
	}
}

func TestVerifyLooksUpBeforeChain(t *testing.T) {
	pki := newTestPKI(t, testHost)

	v := newTestVerifier(t, dns.MockResolver{AllAuthentic: true}, DefaultConfig())
	if _, err := v.Verify(context.Background(), "s", "mx.nodane.example", nil); !errors.Is(err, ErrNoTLSARecords) {
		t.Errorf("host without records: got %v, want ErrNoTLSARecords", err)
	}

	r := testResolver(tlsa(3, 1, 1, pki.leaf))
	r.AllAuthentic = false
	r.Inauthentic = []string{"tlsa " + testName}
	v = newTestVerifier(t, r, DefaultConfig())
	if _, err := v.Verify(context.Background(), "s", testHost, nil); !errors.Is(err, ErrDNSSECValidationFailed) {
		t.Errorf("unauthenticated records: got %v, want ErrDNSSECValidationFailed", err)
	}
	if _, err := v.Verify(context.Background(), "s", testHost, [][]byte{{0x30, 0x03, 0x01}}); !errors.Is(err, ErrDNSSECValidationFailed) {
		t.Errorf("unauthenticated records, malformed chain: got %v, want ErrDNSSECValidationFailed", err)
	}
}

// handshake runs a TLS handshake over loopback and returns the client's
// error.
func handshake(t *testing.T, server tls.Certificate, client *tls.Config) error {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		srv := tls.Server(conn, &tls.Config{
			Certificates:           []tls.Certificate{server},
			SessionTicketsDisabled: true,
		})
		srv.Handshake()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	err = tls.Client(conn, client).Handshake()
	conn.Close()
	<-done
	return err
}

func TestTLSClientConfig(t *testing.T) {
	pki := newTestPKI(t, testHost)
	other := newTestPKI(t, testHost)
	ctx := context.Background()

	v := newTestVerifier(t, testResolver(tlsa(3, 1, 1, pki.leaf)), DefaultConfig())
	config, err := v.TLSClientConfig(ctx, "s", testHost)
	if err != nil {
		t.Fatalf("TLSClientConfig: %v", err)
	}
	if config.ServerName != testHost {
		t.Errorf("server name = %q", config.ServerName)
	}
	if err := handshake(t, pki.tlsCertificate(), config); err != nil {
		t.Errorf("handshake with matching certificate: %v", err)
	}
	if err := handshake(t, other.tlsCertificate(), config); err == nil {
		t.Error("handshake with unrelated certificate succeeded")
	}

	v = newTestVerifier(t, dns.MockResolver{AllAuthentic: true}, DefaultConfig())
	if _, err := v.TLSClientConfig(ctx, "s", testHost); !errors.Is(err, ErrNoTLSARecords) {
		t.Errorf("got %v, want ErrNoTLSARecords", err)
	}
}

func TestTLSClientConfigContextDone(t *testing.T) {
	pki := newTestPKI(t, testHost)
	config := DefaultConfig()
	config.EnableDNSCache = false
	v := newTestVerifier(t, testResolver(tlsa(3, 1, 1, pki.leaf)), config)

	ctx, cancel := context.WithCancel(context.Background())
	tlsConfig, err := v.TLSClientConfig(ctx, "s", testHost)
	if err != nil {
		t.Fatalf("TLSClientConfig: %v", err)
	}
	cancel()

	if err := handshake(t, pki.tlsCertificate(), tlsConfig); err != nil {
		t.Errorf("handshake after the lookup context ended: %v", err)
	}
	if s := v.Metrics().Snapshot(); s.SuccessfulValidations != 1 {
		t.Errorf("successful validations = %d, want 1", s.SuccessfulValidations)
	}
}

func TestVerifyConnection(t *testing.T) {
	pki := newTestPKI(t, testHost)
	v := newTestVerifier(t, testResolver(tlsa(2, 1, 1, pki.ca)), DefaultConfig())

	cs := tls.ConnectionState{PeerCertificates: []*x509.Certificate{pki.leaf, pki.ca}}
	res, err := v.VerifyConnection(context.Background(), "s", testHost, cs)
	if err != nil {
		t.Fatalf("VerifyConnection: %v", err)
	}
	if !res.Success || len(res.Matched) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestErrorKinds(t *testing.T) {
	err := error(&Error{Kind: KindNoTLSARecords, Host: testName})
	if !errors.Is(err, ErrNoTLSARecords) {
		t.Error("kind does not match its sentinel")
	}
	if errors.Is(err, ErrInvalidTLSARecord) {
		t.Error("kind matches another sentinel")
	}
	want := "dane: no tlsa records for " + testName
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
