package main

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mailtrust"
	"github.com/synqronlabs/mailtrust/arc"
	"github.com/synqronlabs/mailtrust/config"
)

func newARCCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arc",
		Short: "Validate and seal ARC chains",
	}
	cmd.AddCommand(newARCVerifyCommand(flags), newARCSealCommand(flags))
	return cmd
}

func newARCVerifyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [message-file]",
		Short: "Validate the ARC chain of a message read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readMessage(cmd, args)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return invoke(cmd.Context(), flags, func(engine *mailtrust.Engine) error {
				res, err := engine.ARC.Validate(cmd.Context(), flags.SessionID, raw)
				if err != nil {
					return err
				}
				printARC(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func printARC(w io.Writer, res *arc.ValidationResult) {
	fmt.Fprintf(w, "arc=%s instances=%d chain_valid=%t\n", res.Result, res.ChainLength, res.ChainValid)
	for _, e := range res.Elements {
		fmt.Fprintf(w, "  i=%d cv=%s ams=%s/%s (%t) seal=%s/%s (%t)",
			e.Instance, e.CV, e.Selector, e.SigningDomain, e.AMSVerified,
			e.SealSelector, e.SealDomain, e.SealVerified)
		if e.Error != "" {
			fmt.Fprintf(w, ": %s", e.Error)
		}
		fmt.Fprintln(w)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "error: %v\n", res.Err)
	}
}

type sealFlags struct {
	domain, selector, keyFile string
	authServID, results, cv   string
}

func newARCSealCommand(flags *globalFlags) *cobra.Command {
	var sf sealFlags
	cmd := &cobra.Command{
		Use:   "seal [message-file]",
		Short: "Add an ARC set to a message and write it to stdout",
		Long: `Add an ARC set to a message and write it to stdout.

Without --cv the existing chain is validated first and its result recorded.
Signing domain, selector and key default to arc.seal in the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readMessage(cmd, args)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return invoke(cmd.Context(), flags, func(engine *mailtrust.Engine, cfg *config.Config) error {
				sealer, err := newSealer(cfg.ARC.Seal, sf)
				if err != nil {
					return err
				}

				cv := arc.ChainValidationStatus(sf.cv)
				if cv == "" {
					res, err := engine.ARC.Validate(cmd.Context(), flags.SessionID, raw)
					if err != nil {
						return err
					}
					cv = chainValidation(res.Result)
				}

				authServID := sf.authServID
				if authServID == "" {
					authServID = sealer.Domain
				}
				res, err := sealer.Seal(raw, authServID, sf.results, cv)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(res.Prepend(raw))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&sf.domain, "domain", "", "Signing domain (d=)")
	cmd.Flags().StringVar(&sf.selector, "selector", "", "Key selector (s=)")
	cmd.Flags().StringVar(&sf.keyFile, "key", "", "PEM private key file")
	cmd.Flags().StringVar(&sf.authServID, "authserv-id", "", "Authentication service identifier (default: signing domain)")
	cmd.Flags().StringVar(&sf.results, "results", "", "Authentication results to record, e.g. \"spf=pass smtp.mailfrom=example.com\"")
	cmd.Flags().StringVar(&sf.cv, "cv", "", "Chain validation status: none, pass or fail")
	return cmd
}

// chainValidation returns the cv= value for a new set given the result of
// validating the existing chain.
func chainValidation(s arc.Status) arc.ChainValidationStatus {
	switch s {
	case arc.StatusNone:
		return arc.ChainValidationNone
	case arc.StatusPass:
		return arc.ChainValidationPass
	}
	return arc.ChainValidationFail
}

func newSealer(cfg config.Seal, sf sealFlags) (*arc.Sealer, error) {
	s := &arc.Sealer{
		Domain:   cfg.Domain,
		Selector: cfg.Selector,
		Headers:  cfg.Headers,
	}
	keyFile := cfg.KeyFile
	if sf.domain != "" {
		s.Domain = sf.domain
	}
	if sf.selector != "" {
		s.Selector = sf.selector
	}
	if sf.keyFile != "" {
		keyFile = sf.keyFile
	}
	if s.Domain == "" || s.Selector == "" || keyFile == "" {
		return nil, errors.New("signing domain, selector and key are required")
	}

	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	if s.PrivateKey, err = parsePrivateKey(data); err != nil {
		return nil, fmt.Errorf("%s: %w", keyFile, err)
	}
	return s, nil
}

// parsePrivateKey parses the first PEM block of data as an RSA or Ed25519
// private key.
func parsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM data")
	}
	if block.Type == "RSA PRIVATE KEY" {
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return k, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	}
	return nil, fmt.Errorf("unsupported key type %T", key)
}
