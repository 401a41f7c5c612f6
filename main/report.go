package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mailtrust/config"
	"github.com/synqronlabs/mailtrust/report"
)

func newReportCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect and drain the DMARC report spool",
	}
	cmd.AddCommand(newReportStatsCommand(flags), newReportDrainCommand(flags))
	return cmd
}

func newReportStatsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number of spooled report entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return invoke(cmd.Context(), flags, func(r *reports) error {
				if r.Spool == nil {
					return errors.New("no report spool configured (report.spool_path)")
				}
				for _, kind := range []report.Kind{report.KindAggregate, report.KindForensic} {
					n, err := r.Spool.Len(kind)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", kind, n)
				}
				return nil
			})
		},
	}
}

func newReportDrainCommand(flags *globalFlags) *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Print spooled report entries and remove them from the spool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return invoke(cmd.Context(), flags, func(r *reports, cfg *config.Config) error {
				if r.Spool == nil {
					return errors.New("no report spool configured (report.spool_path)")
				}
				n, err := r.Spool.Drain(cmd.Context(), k, limit, func(e *report.Entry) error {
					printEntry(cmd.OutOrStdout(), e)
					return nil
				})
				fmt.Fprintf(cmd.ErrOrStderr(), "drained %d %s entries from %s\n", n, k, cfg.Report.SpoolPath)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "aggregate", "Entry kind: aggregate or forensic")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries, 0 for all")
	return cmd
}

func parseKind(s string) (report.Kind, error) {
	for _, k := range []report.Kind{report.KindAggregate, report.KindForensic} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown report kind %q", s)
}

func printEntry(w io.Writer, e *report.Entry) {
	fmt.Fprintf(w, "%s %s session=%s from=%s record=%s result=%s policy=%s disposition=%s to=%s\n",
		e.ID, e.Time.UTC().Format("2006-01-02T15:04:05Z"), e.SessionID, e.FromDomain, e.RecordDomain,
		e.Result, e.Policy, e.Disposition, strings.Join(e.Addresses, ","))
}
