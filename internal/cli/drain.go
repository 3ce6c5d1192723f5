package cli

import (
	"fmt"
	"io"

	"fiscal-offline-go/internal/core/models"

	"github.com/spf13/cobra"
)

// NewDrainCommand erstellt den Befehl, der einen Durchlauf sofort ausführt
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Run one sync pass against the fiscal API and exit",
		Long: `Recovers operations left in processing, then replays every due
operation once. Operations that fail with a retryable error stay pending
with their backoff. Exits with status 1 if any operation failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(cmd, rootOpts)
		},
	}
}

func runDrain(cmd *cobra.Command, opts *RootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Manager.RecoverStale(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "failed to recover stale operations", err)
	}

	result, ran := a.Engine.ProcessQueue(cmd.Context())
	if !ran {
		return NewExitError(ExitCommandError, "a sync pass is already running")
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Print(result, func(w io.Writer) error {
		return writeBatchSummary(w, result)
	}); err != nil {
		return err
	}

	if result.FailureCount > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d operations failed", result.FailureCount, result.Total))
	}
	return nil
}

func writeBatchSummary(w io.Writer, result *models.BatchSyncResult) error {
	if _, err := fmt.Fprintf(w, "Synced %d operations: %d succeeded, %d failed\n",
		result.Total, result.SuccessCount, result.FailureCount); err != nil {
		return err
	}
	for _, r := range result.Results {
		if r.Success || r.Operation == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s %s %s: %s\n", r.Operation.ID, r.Operation.Method, r.Operation.Endpoint, r.Error); err != nil {
			return err
		}
	}
	return nil
}
