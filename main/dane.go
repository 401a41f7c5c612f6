package main

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mailtrust"
	"github.com/synqronlabs/mailtrust/dane"
)

func newDANECommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dane",
		Short: "Verify TLS certificates against TLSA records",
	}
	cmd.AddCommand(newDANEVerifyCommand(flags))
	return cmd
}

func newDANEVerifyCommand(flags *globalFlags) *cobra.Command {
	var (
		certFile    string
		connect     string
		implicitTLS bool
		heloName    string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "verify HOST",
		Short: "Verify the certificate of HOST against its TLSA records",
		Long: `Verify the certificate of HOST against its TLSA records.

By default HOST is contacted on the configured DANE port and the
certificate presented after STARTTLS is verified. With --cert-file a PEM
chain, leaf first, is verified instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			cmd.SilenceUsage = true
			return invoke(cmd.Context(), flags, func(engine *mailtrust.Engine) error {
				ctx := cmd.Context()
				var (
					res *dane.VerificationResult
					err error
				)
				if certFile != "" {
					var chain [][]byte
					if chain, err = readChain(certFile); err != nil {
						return err
					}
					res, err = engine.DANE.Verify(ctx, flags.SessionID, host, chain)
				} else {
					addr := connect
					if addr == "" {
						addr = net.JoinHostPort(host, strconv.Itoa(engine.DANE.Config().Port))
					}
					ctx, cancel := context.WithTimeout(ctx, timeout)
					defer cancel()
					var cs tls.ConnectionState
					if cs, err = handshake(ctx, engine.DANE, flags.SessionID, host, addr, heloName, implicitTLS); err != nil {
						return err
					}
					res, err = engine.DANE.VerifyConnection(ctx, flags.SessionID, host, cs)
				}
				if res != nil {
					printDANE(cmd.OutOrStdout(), res)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&certFile, "cert-file", "", "Verify this PEM certificate chain instead of connecting")
	cmd.Flags().StringVar(&connect, "connect", "", "Address to connect to (default: HOST and the configured port)")
	cmd.Flags().BoolVar(&implicitTLS, "implicit-tls", false, "Start TLS immediately instead of with STARTTLS")
	cmd.Flags().StringVar(&heloName, "helo", "localhost", "Name to send in EHLO")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Connection timeout")
	return cmd
}

// handshake connects to addr and completes a TLS handshake authenticated
// by the TLSA records of host.
func handshake(ctx context.Context, v *dane.Verifier, sessionID, host, addr, heloName string, implicitTLS bool) (tls.ConnectionState, error) {
	config, err := v.TLSClientConfig(ctx, sessionID, host)
	if err != nil {
		return tls.ConnectionState{}, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return tls.ConnectionState{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if implicitTLS {
		tc := tls.Client(conn, config)
		if err := tc.HandshakeContext(ctx); err != nil {
			return tls.ConnectionState{}, err
		}
		return tc.ConnectionState(), nil
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return tls.ConnectionState{}, err
	}
	defer c.Close()
	if err := c.Hello(heloName); err != nil {
		return tls.ConnectionState{}, err
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return tls.ConnectionState{}, errors.New("server does not offer STARTTLS")
	}
	if err := c.StartTLS(config); err != nil {
		return tls.ConnectionState{}, err
	}
	cs, _ := c.TLSConnectionState()
	c.Quit()
	return cs, nil
}

// readChain reads the CERTIFICATE blocks of a PEM file.
func readChain(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%s: no certificates", path)
	}
	return chain, nil
}

func printDANE(w io.Writer, res *dane.VerificationResult) {
	fmt.Fprintf(w, "dane success=%t dnssec=%t certificates=%d records=%d\n",
		res.Success, res.DNSSECValidated, res.CertificatesVerified, res.TLSARecordsProcessed)
	for _, r := range res.Matched {
		fmt.Fprintf(w, "  matched %s %s %s\n", r.Usage, r.Selector, r.MatchType)
	}
	fmt.Fprintf(w, "  %s\n", res.Message)
}
