// Command mailtrust validates ARC chains, evaluates DMARC policies and
// verifies DANE TLSA records from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   filepath.Base(os.Args[0]),
		Short: "Email authentication: ARC, DMARC and DANE",
		Args:  cobra.NoArgs,
		// Errors are printed in main.
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.SessionID == "" {
				flags.SessionID = ulid.Make().String()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "Path to config file (default: mailtrust.yaml in /etc/mailtrust or .)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Override logging.level")
	cmd.PersistentFlags().StringVar(&flags.SessionID, "session", "", "Session ID for log correlation (default: a new ULID)")

	cmd.AddCommand(
		newARCCommand(flags),
		newDMARCCommand(flags),
		newDANECommand(flags),
		newReportCommand(flags),
		newServeMetricsCommand(flags),
	)
	return cmd
}

// invoke builds the container and calls fn with its dependencies. The
// report pipeline runs for the duration of the call.
func invoke(ctx context.Context, flags *globalFlags, fn any) error {
	container, err := buildContainer(flags)
	if err != nil {
		return err
	}
	if err := container.Invoke(func(r *reports) { r.start(ctx) }); err != nil {
		return err
	}
	runErr := container.Invoke(fn)
	closeErr := container.Invoke(func(r *reports) error {
		return r.Close(context.WithoutCancel(ctx))
	})
	return errors.Join(runErr, closeErr)
}

// readMessage reads the file named by args[0], or stdin if there is none
// or it is "-".
func readMessage(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
