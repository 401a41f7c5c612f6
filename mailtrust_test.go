package mailtrust

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/synqronlabs/mailtrust/arc"
	"github.com/synqronlabs/mailtrust/config"
	"github.com/synqronlabs/mailtrust/dkim"
	"github.com/synqronlabs/mailtrust/dmarc"
	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/report"
	"github.com/synqronlabs/mailtrust/spf"
)

const testMessage = "From: sender@example.com\r\n" +
	"To: recipient@example.org\r\n" +
	"Subject: Test\r\n" +
	"Date: Thu, 19 Dec 2024 10:00:00 +0000\r\n" +
	"Message-ID: <test@example.com>\r\n" +
	"\r\n" +
	"This is a test message.\r\n"

type recordingSink struct {
	mu      sync.Mutex
	entries []*report.Entry
}

func (s *recordingSink) Submit(e *report.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// sealedMessage returns testMessage sealed by example.net and a resolver
// publishing the sealing key and a DMARC record for example.com.
func sealedMessage(t *testing.T) ([]byte, dns.MockResolver) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := dkim.NewRecord(pub)
	if err != nil {
		t.Fatal(err)
	}
	txt, err := rec.TXT()
	if err != nil {
		t.Fatal(err)
	}

	sealer := &arc.Sealer{Domain: "example.net", Selector: "arc", PrivateKey: priv}
	res, err := sealer.Seal([]byte(testMessage), "mx.example.net", "spf=pass smtp.mailfrom=example.com", arc.ChainValidationNone)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	resolver := dns.MockResolver{
		TXT: map[string][]string{
			"arc._domainkey.example.net.": {txt},
			"_dmarc.example.com.":         {"v=DMARC1; p=reject; rua=mailto:agg@example.com"},
		},
		TTL: time.Hour,
	}
	return res.Prepend([]byte(testMessage)), resolver
}

func newTestEngine(t *testing.T, resolver dns.Resolver, opts ...Option) *Engine {
	t.Helper()
	e, err := New(resolver, config.Default(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEngineCheck(t *testing.T) {
	raw, resolver := sealedMessage(t)
	sink := &recordingSink{}
	e := newTestEngine(t, resolver, WithReportSink(sink))

	msg := &Message{
		Raw:        raw,
		FromDomain: "example.com",
		DKIM:       []dkim.Result{{Domain: "example.com", Selector: "s1", Status: dkim.StatusPass}},
		SPF:        &spf.Result{Domain: "example.com", Identity: spf.IdentityMailFrom, Status: spf.StatusPass},
	}
	res, err := e.Check(context.Background(), "session-1", msg)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.ARC.Result != arc.StatusPass {
		t.Errorf("arc = %s (%v), want pass", res.ARC.Result, res.ARC.Err)
	}
	if res.DMARC.Result != dmarc.StatusPass || res.DMARC.Disposition != dmarc.DispositionAccept {
		t.Errorf("dmarc = %s/%s, want pass/accept", res.DMARC.Result, res.DMARC.Disposition)
	}

	want := "mx.example.org;\r\n" +
		"\tdkim=pass header.d=example.com header.s=s1;\r\n" +
		"\tspf=pass smtp.mailfrom=example.com;\r\n" +
		"\tdmarc=pass (p=reject dis=accept) header.from=example.com;\r\n" +
		"\tarc=pass (i=1)"
	if got := res.AuthenticationResults("mx.example.org"); got != want {
		t.Errorf("AuthenticationResults() =\n%q\nwant\n%q", got, want)
	}

	sink.mu.Lock()
	if len(sink.entries) != 1 || sink.entries[0].Kind != report.KindAggregate {
		t.Errorf("report entries = %+v", sink.entries)
	}
	sink.mu.Unlock()

	expected := `
# HELP mailtrust_validations_total Total number of validations by outcome.
# TYPE mailtrust_validations_total counter
mailtrust_validations_total{outcome="failure",validator="arc"} 0
mailtrust_validations_total{outcome="failure",validator="dane"} 0
mailtrust_validations_total{outcome="failure",validator="dmarc"} 0
mailtrust_validations_total{outcome="none",validator="arc"} 0
mailtrust_validations_total{outcome="none",validator="dane"} 0
mailtrust_validations_total{outcome="none",validator="dmarc"} 0
mailtrust_validations_total{outcome="success",validator="arc"} 1
mailtrust_validations_total{outcome="success",validator="dane"} 0
mailtrust_validations_total{outcome="success",validator="dmarc"} 1
`
	if err := testutil.CollectAndCompare(e.Metrics, strings.NewReader(expected), "mailtrust_validations_total"); err != nil {
		t.Error(err)
	}
}

func TestEngineCheckWithoutRaw(t *testing.T) {
	_, resolver := sealedMessage(t)
	e := newTestEngine(t, resolver)

	res, err := e.Check(context.Background(), "s", &Message{FromDomain: "example.com"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.ARC != nil {
		t.Errorf("arc validated without a message: %+v", res.ARC)
	}
	if res.DMARC.Result != dmarc.StatusFail || res.DMARC.Disposition != dmarc.DispositionReject {
		t.Errorf("dmarc = %s/%s, want fail/reject", res.DMARC.Result, res.DMARC.Disposition)
	}
}

func TestEngineCheckError(t *testing.T) {
	_, resolver := sealedMessage(t)
	e := newTestEngine(t, resolver)

	if _, err := e.Check(context.Background(), "s", &Message{FromDomain: "not a domain"}); err == nil {
		t.Error("invalid From domain accepted")
	}
}

func TestEngineDedup(t *testing.T) {
	cfg := config.Default()
	cfg.DNS.Dedup = true
	e, err := New(dns.MockResolver{}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Resolver.(*dns.Dedup); !ok {
		t.Errorf("resolver is %T, want *dns.Dedup", e.Resolver)
	}

	cfg.DNS.Dedup = false
	e, err = New(dns.MockResolver{}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Resolver.(dns.MockResolver); !ok {
		t.Errorf("resolver is %T, want the one passed in", e.Resolver)
	}
}

func TestAuthenticationResults(t *testing.T) {
	tests := []struct {
		name  string
		dkim  []dkim.Result
		spf   *spf.Result
		arc   *arc.ValidationResult
		dmarc *dmarc.EvaluationResult
		want  string
	}{
		{
			name: "nothing",
			want: "mx.example.org; none",
		},
		{
			name: "helo identity",
			spf:  &spf.Result{Domain: "mail.example.com", Identity: spf.IdentityHelo, Status: spf.StatusSoftfail},
			want: "mx.example.org;\r\n\tspf=softfail smtp.helo=mail.example.com",
		},
		{
			name: "spf without domain",
			spf:  &spf.Result{Identity: spf.IdentityMailFrom, Status: spf.StatusNone},
			want: "mx.example.org;\r\n\tspf=none",
		},
		{
			name: "dmarc without record",
			dmarc: &dmarc.EvaluationResult{
				Result: dmarc.StatusNone,
				Domain: "example.com",
			},
			want: "mx.example.org;\r\n\tdmarc=none header.from=example.com",
		},
		{
			name: "failures",
			dkim: []dkim.Result{
				{Domain: "example.com", Status: dkim.StatusFail},
				{Status: ""},
			},
			arc: &arc.ValidationResult{Result: arc.StatusFail, HighestInstance: 2},
			want: "mx.example.org;\r\n" +
				"\tdkim=fail header.d=example.com;\r\n" +
				"\tdkim=none;\r\n" +
				"\tarc=fail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AuthenticationResults("mx.example.org", tt.dkim, tt.spf, tt.arc, tt.dmarc)
			if got != tt.want {
				t.Errorf("got\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}
