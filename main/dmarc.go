package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mailtrust"
	"github.com/synqronlabs/mailtrust/dkim"
	"github.com/synqronlabs/mailtrust/dmarc"
	"github.com/synqronlabs/mailtrust/spf"
)

func newDMARCCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dmarc",
		Short: "Evaluate DMARC policies",
	}
	cmd.AddCommand(newDMARCEvaluateCommand(flags))
	return cmd
}

func newDMARCEvaluateCommand(flags *globalFlags) *cobra.Command {
	var (
		from       string
		dkimFlags  []string
		spfFlag    string
		helo       bool
		authServID string
	)
	cmd := &cobra.Command{
		Use:   "evaluate --from DOMAIN [--dkim DOMAIN[:SELECTOR]=STATUS]... [--spf DOMAIN=STATUS]",
		Short: "Evaluate the DMARC policy of a From domain given DKIM and SPF results",
		Example: `  mailtrust dmarc evaluate --from example.com \
    --dkim example.com:s1=pass --dkim esp.example=fail \
    --spf bounce.example.com=softfail`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var dkimResults []dkim.Result
			for _, f := range dkimFlags {
				r, err := parseDKIMFlag(f)
				if err != nil {
					return err
				}
				dkimResults = append(dkimResults, r)
			}
			var spfResult *spf.Result
			if spfFlag != "" {
				r, err := parseSPFFlag(spfFlag, helo)
				if err != nil {
					return err
				}
				spfResult = &r
			}

			cmd.SilenceUsage = true
			return invoke(cmd.Context(), flags, func(engine *mailtrust.Engine) error {
				res, err := engine.DMARC.Evaluate(cmd.Context(), flags.SessionID, from, dkimResults, spfResult)
				if err != nil {
					return err
				}
				printDMARC(cmd.OutOrStdout(), res)
				if authServID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Authentication-Results: %s\n",
						mailtrust.AuthenticationResults(authServID, dkimResults, spfResult, nil, res))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "RFC5322.From domain")
	cmd.Flags().StringArrayVar(&dkimFlags, "dkim", nil, "DKIM result as domain[:selector]=status, repeatable")
	cmd.Flags().StringVar(&spfFlag, "spf", "", "SPF result as domain=status")
	cmd.Flags().BoolVar(&helo, "helo", false, "The SPF domain is the HELO name, not the MAIL FROM domain")
	cmd.Flags().StringVar(&authServID, "authserv-id", "", "Also print an Authentication-Results header for this host")
	cmd.MarkFlagRequired("from")
	return cmd
}

// parseDKIMFlag parses "domain[:selector]=status".
func parseDKIMFlag(s string) (dkim.Result, error) {
	id, status, ok := strings.Cut(s, "=")
	if !ok || id == "" {
		return dkim.Result{}, fmt.Errorf("dkim result %q: want domain[:selector]=status", s)
	}
	domain, selector, _ := strings.Cut(id, ":")
	st := dkim.Status(strings.ToLower(status))
	switch st {
	case dkim.StatusNone, dkim.StatusPass, dkim.StatusFail, dkim.StatusPolicy,
		dkim.StatusNeutral, dkim.StatusTemperror, dkim.StatusPermerror:
	default:
		return dkim.Result{}, fmt.Errorf("dkim result %q: unknown status %q", s, status)
	}
	return dkim.Result{Domain: domain, Selector: selector, Status: st}, nil
}

// parseSPFFlag parses "domain=status".
func parseSPFFlag(s string, helo bool) (spf.Result, error) {
	domain, status, ok := strings.Cut(s, "=")
	if !ok || domain == "" {
		return spf.Result{}, fmt.Errorf("spf result %q: want domain=status", s)
	}
	st := spf.Status(strings.ToLower(status))
	switch st {
	case spf.StatusNone, spf.StatusNeutral, spf.StatusPass, spf.StatusFail,
		spf.StatusSoftfail, spf.StatusTemperror, spf.StatusPermerror:
	default:
		return spf.Result{}, fmt.Errorf("spf result %q: unknown status %q", s, status)
	}
	r := spf.Result{Domain: domain, Identity: spf.IdentityMailFrom, Status: st}
	if helo {
		r.Identity = spf.IdentityHelo
	}
	return r, nil
}

func printDMARC(w io.Writer, res *dmarc.EvaluationResult) {
	fmt.Fprintf(w, "dmarc=%s policy=%s disposition=%s domain=%s record_domain=%s\n",
		res.Result, res.Policy, res.Disposition, res.Domain, res.RecordDomain)
	if res.RawRecord != "" {
		fmt.Fprintf(w, "  record: %s\n", res.RawRecord)
	}
	fmt.Fprintf(w, "  dkim_aligned=%t spf_aligned=%t sampled=%t authentic=%t\n",
		res.DKIMAligned, res.SPFAligned, res.Sampled, res.RecordAuthentic)
	for _, a := range res.DKIM {
		fmt.Fprintf(w, "  dkim %s/%s passed=%t aligned=%t (%s)\n", a.Domain, a.Selector, a.Passed, a.Aligned, a.Mode)
	}
	if a := res.SPF; a != nil {
		fmt.Fprintf(w, "  spf %s passed=%t aligned=%t (%s)\n", a.Domain, a.Passed, a.Aligned, a.Mode)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "  error: %v\n", res.Err)
	}
}
