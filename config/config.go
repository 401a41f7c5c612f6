// Package config loads the mailtrust configuration from a YAML file and
// MAILTRUST_ environment variables.
//
// Keys are nested with dots, and the environment variable for a key is its
// upper-cased path with dots replaced by underscores:
//
//	dmarc:
//	  strict_policy: true    # MAILTRUST_DMARC_STRICT_POLICY=true
package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/synqronlabs/mailtrust/arc"
	"github.com/synqronlabs/mailtrust/cache"
	"github.com/synqronlabs/mailtrust/dane"
	"github.com/synqronlabs/mailtrust/dmarc"
	"github.com/synqronlabs/mailtrust/dns"
	"github.com/synqronlabs/mailtrust/logging"
)

// EnvPrefix prefixes environment variable overrides.
const EnvPrefix = "MAILTRUST"

// Config is the complete configuration.
type Config struct {
	DNS     DNS            `mapstructure:"dns"`
	Cache   Cache          `mapstructure:"cache"`
	ARC     ARC            `mapstructure:"arc"`
	DMARC   DMARC          `mapstructure:"dmarc"`
	DANE    DANE           `mapstructure:"dane"`
	Report  Report         `mapstructure:"report"`
	Logging logging.Config `mapstructure:"logging"`
	Metrics Metrics        `mapstructure:"metrics"`
}

// DNS configures the shared resolver.
type DNS struct {
	// Nameservers are host:port pairs. Empty means /etc/resolv.conf.
	Nameservers []string `mapstructure:"nameservers"`

	// DNSSEC sets the DO bit so the upstream reports authenticated data.
	DNSSEC bool `mapstructure:"dnssec"`

	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`

	// System uses the Go resolver instead of querying Nameservers directly.
	// It cannot look up TLSA records.
	System bool `mapstructure:"system"`

	// Dedup collapses identical concurrent lookups.
	Dedup bool `mapstructure:"dedup"`
}

// Cache configures the record and result caches of all validators.
type Cache struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Size    int    `mapstructure:"size"`

	// TTL overrides record TTLs when positive.
	TTL time.Duration `mapstructure:"ttl"`
}

// ARC configures ARC validation and sealing.
type ARC struct {
	DNSTimeout        time.Duration `mapstructure:"dns_timeout"`
	ValidationTimeout time.Duration `mapstructure:"validation_timeout"`
	MaxHeaders        int           `mapstructure:"max_headers"`
	Strict            bool          `mapstructure:"strict"`
	MinRSAKeyBits     int           `mapstructure:"min_rsa_key_bits"`
	Seal              Seal          `mapstructure:"seal"`
}

// Seal configures the ARC sealer.
type Seal struct {
	Domain   string `mapstructure:"domain"`
	Selector string `mapstructure:"selector"`

	// KeyFile is a PEM encoded PKCS#8, PKCS#1 or Ed25519 private key.
	KeyFile string   `mapstructure:"key_file"`
	Headers []string `mapstructure:"headers"`
}

// DMARC configures policy evaluation.
type DMARC struct {
	DNSTimeout        time.Duration `mapstructure:"dns_timeout"`
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout"`
	NegativeCacheTTL  time.Duration `mapstructure:"negative_cache_ttl"`
	StrictPolicy      bool          `mapstructure:"strict_policy"`
	AggregateReports  bool          `mapstructure:"aggregate_reports"`
	ForensicReports   bool          `mapstructure:"forensic_reports"`
}

// DANE configures TLSA verification.
type DANE struct {
	Port                int           `mapstructure:"port"`
	Protocol            string        `mapstructure:"protocol"`
	DNSTimeout          time.Duration `mapstructure:"dns_timeout"`
	VerificationTimeout time.Duration `mapstructure:"verification_timeout"`
	PKIXValidation      bool          `mapstructure:"pkix_validation"`

	// RootsFile is a PEM bundle of PKIX trust anchors. Empty means the
	// system pool.
	RootsFile string `mapstructure:"roots_file"`
}

// Report configures the report entry queue.
type Report struct {
	QueueSize int `mapstructure:"queue_size"`

	// SpoolPath is the bbolt file entries are written to. Empty disables
	// report collection.
	SpoolPath string `mapstructure:"spool_path"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	arcDef := arc.DefaultConfig()
	dmarcDef := dmarc.DefaultConfig()
	daneDef := dane.DefaultConfig()
	logDef := logging.DefaultConfig()

	// DNS defaults
	v.SetDefault("dns.nameservers", []string{})
	v.SetDefault("dns.dnssec", true)
	v.SetDefault("dns.timeout", "5s")
	v.SetDefault("dns.retries", 2)
	v.SetDefault("dns.system", false)
	v.SetDefault("dns.dedup", true)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.size", cache.DefaultMaxSize)
	v.SetDefault("cache.ttl", "0s")

	// ARC defaults
	v.SetDefault("arc.dns_timeout", arcDef.DNSTimeout)
	v.SetDefault("arc.validation_timeout", arcDef.ValidationTimeout)
	v.SetDefault("arc.max_headers", arcDef.MaxARCHeaders)
	v.SetDefault("arc.strict", arcDef.StrictValidation)
	v.SetDefault("arc.min_rsa_key_bits", arcDef.MinRSAKeyBits)
	v.SetDefault("arc.seal.domain", "")
	v.SetDefault("arc.seal.selector", "")
	v.SetDefault("arc.seal.key_file", "")
	v.SetDefault("arc.seal.headers", []string{})

	// DMARC defaults
	v.SetDefault("dmarc.dns_timeout", dmarcDef.DNSTimeout)
	v.SetDefault("dmarc.evaluation_timeout", dmarcDef.EvaluationTimeout)
	v.SetDefault("dmarc.negative_cache_ttl", dmarcDef.NegativeCacheTTL)
	v.SetDefault("dmarc.strict_policy", dmarcDef.StrictPolicy)
	v.SetDefault("dmarc.aggregate_reports", dmarcDef.GenerateAggregateReports)
	v.SetDefault("dmarc.forensic_reports", dmarcDef.GenerateForensicReports)

	// DANE defaults
	v.SetDefault("dane.port", daneDef.Port)
	v.SetDefault("dane.protocol", daneDef.Protocol)
	v.SetDefault("dane.dns_timeout", daneDef.DNSTimeout)
	v.SetDefault("dane.verification_timeout", daneDef.VerificationTimeout)
	v.SetDefault("dane.pkix_validation", daneDef.PKIXValidation)
	v.SetDefault("dane.roots_file", "")

	// Report defaults
	v.SetDefault("report.queue_size", 1024)
	v.SetDefault("report.spool_path", "")

	// Logging defaults
	v.SetDefault("logging.level", logDef.Level)
	v.SetDefault("logging.format", logDef.Format)
	v.SetDefault("logging.outputs", logDef.Outputs)

	// Metrics defaults
	v.SetDefault("metrics.listen", "127.0.0.1:9153")
	v.SetDefault("metrics.path", "/metrics")
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	return c
}

// Load reads the configuration. If path is empty, mailtrust.yaml is looked
// for in /etc/mailtrust and the working directory and may be absent.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("mailtrust")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mailtrust")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values the validators would otherwise reject or silently
// replace.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendGoCache:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.Size < 0 {
		errs = append(errs, fmt.Errorf("cache.size: must not be negative"))
	}
	if c.DANE.Port <= 0 || c.DANE.Port > 65535 {
		errs = append(errs, fmt.Errorf("dane.port: %d out of range", c.DANE.Port))
	}
	switch c.DANE.Protocol {
	case "tcp", "udp", "sctp":
	default:
		errs = append(errs, fmt.Errorf("dane.protocol: unknown protocol %q", c.DANE.Protocol))
	}
	if c.ARC.MaxHeaders <= 0 || c.ARC.MaxHeaders > arc.MaxInstance {
		errs = append(errs, fmt.Errorf("arc.max_headers: must be between 1 and %d", arc.MaxInstance))
	}
	if c.Report.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("report.queue_size: must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// ResolverConfig returns the configuration of the miekg resolver.
func (c *Config) ResolverConfig() dns.ResolverConfig {
	return dns.ResolverConfig{
		Nameservers: c.DNS.Nameservers,
		DNSSEC:      c.DNS.DNSSEC,
		Timeout:     c.DNS.Timeout,
		Retries:     c.DNS.Retries,
	}
}

// ARCConfig returns the ARC validator configuration.
func (c *Config) ARCConfig() arc.Config {
	return arc.Config{
		DNSTimeout:        c.ARC.DNSTimeout,
		ValidationTimeout: c.ARC.ValidationTimeout,
		MaxARCHeaders:     c.ARC.MaxHeaders,
		EnableDNSCache:    c.Cache.Enabled,
		DNSCacheTTL:       c.Cache.TTL,
		CacheBackend:      c.Cache.Backend,
		CacheSize:         c.Cache.Size,
		StrictValidation:  c.ARC.Strict,
		MinRSAKeyBits:     c.ARC.MinRSAKeyBits,
	}
}

// DMARCConfig returns the DMARC evaluator configuration.
func (c *Config) DMARCConfig() dmarc.Config {
	return dmarc.Config{
		DNSTimeout:               c.DMARC.DNSTimeout,
		EvaluationTimeout:        c.DMARC.EvaluationTimeout,
		EnableDNSCache:           c.Cache.Enabled,
		DNSCacheTTL:              c.Cache.TTL,
		NegativeCacheTTL:         c.DMARC.NegativeCacheTTL,
		StrictPolicy:             c.DMARC.StrictPolicy,
		GenerateAggregateReports: c.DMARC.AggregateReports,
		GenerateForensicReports:  c.DMARC.ForensicReports,
		CacheBackend:             c.Cache.Backend,
		CacheSize:                c.Cache.Size,
	}
}

// DANEConfig returns the DANE verifier configuration, reading RootsFile if
// set.
func (c *Config) DANEConfig() (dane.Config, error) {
	config := dane.Config{
		Port:                c.DANE.Port,
		Protocol:            c.DANE.Protocol,
		DNSTimeout:          c.DANE.DNSTimeout,
		VerificationTimeout: c.DANE.VerificationTimeout,
		EnableDNSCache:      c.Cache.Enabled,
		DNSCacheTTL:         c.Cache.TTL,
		CacheBackend:        c.Cache.Backend,
		CacheSize:           c.Cache.Size,
		PKIXValidation:      c.DANE.PKIXValidation,
	}
	if c.DANE.RootsFile != "" {
		pem, err := os.ReadFile(c.DANE.RootsFile)
		if err != nil {
			return config, fmt.Errorf("dane.roots_file: %w", err)
		}
		config.Roots = x509.NewCertPool()
		if !config.Roots.AppendCertsFromPEM(pem) {
			return config, fmt.Errorf("dane.roots_file: no certificates in %s", c.DANE.RootsFile)
		}
	}
	return config, nil
}
