package dns

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// ResolverConfig contains configuration for the DNS resolver.
type ResolverConfig struct {
	// Nameservers is a list of DNS servers to query (e.g., "127.0.0.1:53").
	// If empty, system resolvers from /etc/resolv.conf are used,
	// falling back to public DNS (8.8.8.8, 1.1.1.1).
	Nameservers []string

	// DNSSEC sets the DO bit on queries so validating upstream resolvers
	// report the AD flag. DANE requires it.
	DNSSEC bool

	// Timeout is the timeout for individual DNS exchanges. Default is 5 seconds.
	Timeout time.Duration

	// Retries is the number of retries for failed queries. Default is 2.
	Retries int
}

// DNSResolver implements the Resolver interface using github.com/miekg/dns.
type DNSResolver struct {
	config    ResolverConfig
	client    *mdns.Client
	tcpClient *mdns.Client
}

var _ Resolver = (*DNSResolver)(nil)

// NewResolver creates a new DNS resolver.
func NewResolver(config ResolverConfig) *DNSResolver {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 2
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = getSystemNameservers()
	}

	return &DNSResolver{
		config: config,
		client: &mdns.Client{
			Timeout: config.Timeout,
		},
		tcpClient: &mdns.Client{
			Net:     "tcp",
			Timeout: config.Timeout,
		},
	}
}

// getSystemNameservers tries to get system DNS servers from resolv.conf.
func getSystemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		servers = append(servers, net.JoinHostPort(s, config.Port))
	}
	return servers
}

// ensureAbsolute ensures the domain name ends with a dot (FQDN format).
func ensureAbsolute(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

// query performs a DNS query with retries and DNSSEC checking.
func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, bool, error) {
	m := new(mdns.Msg)
	m.SetQuestion(ensureAbsolute(name), qtype)
	m.RecursionDesired = true

	if r.config.DNSSEC {
		m.SetEdns0(4096, true)
	}

	var lastErr error

	for i := 0; i <= r.config.Retries; i++ {
		for _, server := range r.config.Nameservers {
			if err := ctx.Err(); err != nil {
				return nil, false, contextError(err)
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = exchangeError(err)
				continue
			}
			// A truncated answer says nothing about the records, so it must
			// not be mistaken for an empty one.
			if resp.Truncated {
				resp, _, err = r.tcpClient.ExchangeContext(ctx, m, server)
				if err != nil {
					lastErr = fmt.Errorf("truncated answer, retry over tcp: %w", exchangeError(err))
					continue
				}
				if resp.Truncated {
					lastErr = fmt.Errorf("%w: truncated answer over tcp", ErrDNSServFail)
					continue
				}
			}

			authentic := r.config.DNSSEC && resp.AuthenticatedData

			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, authentic, nil
			case mdns.RcodeNameError:
				return nil, authentic, ErrDNSNotFound
			case mdns.RcodeServerFailure:
				// Validating resolvers answer SERVFAIL for bogus data.
				if r.config.DNSSEC {
					lastErr = ErrDNSBogus
				} else {
					lastErr = ErrDNSServFail
				}
			case mdns.RcodeRefused:
				lastErr = ErrDNSRefused
			default:
				lastErr = fmt.Errorf("%w: unexpected rcode %s", ErrDNSServFail, mdns.RcodeToString[resp.Rcode])
			}
		}
	}

	if lastErr != nil {
		return nil, false, lastErr
	}
	return nil, false, ErrDNSServFail
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrDNSTimeout, err)
	}
	return err
}

func exchangeError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrDNSTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrDNSServFail, err)
}

// minTTL returns the smallest TTL of the answer records of type rrtype.
func minTTL(resp *mdns.Msg, rrtype uint16) time.Duration {
	var ttl uint32
	first := true
	for _, rr := range resp.Answer {
		h := rr.Header()
		if h.Rrtype != rrtype {
			continue
		}
		if first || h.Ttl < ttl {
			ttl = h.Ttl
			first = false
		}
	}
	return time.Duration(ttl) * time.Second
}

// LookupTXT retrieves TXT records for the given name. Character strings of a
// single record are concatenated.
func (r *DNSResolver) LookupTXT(ctx context.Context, name string) (Result[string], error) {
	resp, authentic, err := r.query(ctx, name, mdns.TypeTXT)
	if err != nil {
		return Result[string]{Authentic: authentic}, err
	}

	var records []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}

	if len(records) == 0 {
		return Result[string]{Authentic: authentic}, ErrDNSNotFound
	}

	return Result[string]{Records: records, Authentic: authentic, TTL: minTTL(resp, mdns.TypeTXT)}, nil
}

// LookupTLSA retrieves TLSA records for the given name, e.g.
// "_25._tcp.mx.example.com.". Records with undecodable association data are
// returned with an empty CertAssoc so callers can count them as invalid.
func (r *DNSResolver) LookupTLSA(ctx context.Context, name string) (Result[TLSA], error) {
	resp, authentic, err := r.query(ctx, name, mdns.TypeTLSA)
	if err != nil {
		return Result[TLSA]{Authentic: authentic}, err
	}

	var records []TLSA
	for _, rr := range resp.Answer {
		t, ok := rr.(*mdns.TLSA)
		if !ok {
			continue
		}
		assoc, err := hex.DecodeString(t.Certificate)
		if err != nil {
			assoc = nil
		}
		records = append(records, TLSA{
			Usage:     TLSAUsage(t.Usage),
			Selector:  TLSASelector(t.Selector),
			MatchType: TLSAMatchType(t.MatchingType),
			CertAssoc: assoc,
		})
	}

	if len(records) == 0 {
		return Result[TLSA]{Authentic: authentic}, ErrDNSNotFound
	}

	return Result[TLSA]{Records: records, Authentic: authentic, TTL: minTTL(resp, mdns.TypeTLSA)}, nil
}

// Config returns the resolver's current configuration.
func (r *DNSResolver) Config() ResolverConfig {
	return r.config
}
