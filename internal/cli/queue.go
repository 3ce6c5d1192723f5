package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/queue"
	"fiscal-offline-go/internal/util/timezone"

	"github.com/spf13/cobra"
)

// QueueOptions enthält die Flags der queue-Unterbefehle
type QueueOptions struct {
	*RootOptions
	Status    []string
	OlderThan time.Duration
}

// NewQueueCommand erstellt den queue-Befehl mit seinen Unterbefehlen
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the persisted operation queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show operation counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueStats(cmd, opts)
		},
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List operations in dequeue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, opts)
		},
	}
	list.Flags().StringSliceVar(&opts.Status, "status", nil, "filter by status (pending,processing,completed,failed)")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <operation-id>",
		Short: "Requeue a failed operation as a new pending operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueRetry(cmd, opts, args[0])
		},
	})

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete completed and failed operations older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueuePurge(cmd, opts)
		},
	}
	purge.Flags().DurationVar(&opts.OlderThan, "older-than", 24*time.Hour, "minimum age since the last status change")
	cmd.AddCommand(purge)

	return cmd
}

func runQueueStats(cmd *cobra.Command, opts *QueueOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Manager.Stats(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Print(stats, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "pending:    %d\nprocessing: %d\ncompleted:  %d\nfailed:     %d\ntotal:      %d\n",
			stats.Pending, stats.Processing, stats.Completed, stats.Failed, stats.Total)
		return err
	})
}

func runQueueList(cmd *cobra.Command, opts *QueueOptions) error {
	statuses, err := normalizeStatuses(opts.Status)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ops, err := a.Manager.List(cmd.Context(), statuses...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Print(ops, func(w io.Writer) error {
		return writeOperationTable(w, ops)
	})
}

func runQueueRetry(cmd *cobra.Command, opts *QueueOptions, id string) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	op, err := a.Manager.Requeue(cmd.Context(), id)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return NewExitError(ExitFailure, fmt.Sprintf("operation %s not found", id))
	case errors.Is(err, queue.ErrInvalidTransition):
		return WrapExitError(ExitFailure, "only failed operations can be retried", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to requeue operation", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Print(op, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Operation %s requeued as %s\n", id, op.ID)
		return err
	})
}

func runQueuePurge(cmd *cobra.Command, opts *QueueOptions) error {
	if opts.OlderThan < 0 {
		return NewExitError(ExitCommandError, "--older-than must not be negative")
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.Manager.PurgeTerminal(cmd.Context(), timezone.Now().Add(-opts.OlderThan))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to purge queue", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Print(map[string]int{"removed": removed}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Removed %d operations\n", removed)
		return err
	})
}

func normalizeStatuses(raw []string) ([]string, error) {
	var statuses []string
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
			statuses = append(statuses, s)
		default:
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", s))
		}
	}
	return statuses, nil
}

func writeOperationTable(w io.Writer, ops []*models.QueuedOperation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIO\tRETRIES\tMETHOD\tENDPOINT\tCREATED\tLAST ERROR")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%s\t%s\t%s\t%s\n",
			op.ID, op.Status, op.Priority, op.RetryCount, op.MaxRetries,
			op.Method, op.Endpoint, timezone.RFC3339(op.CreatedAt), op.LastError)
	}
	return tw.Flush()
}
