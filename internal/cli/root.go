// Package cli stellt die Befehlszeile des Dienstes bereit: den Server selbst
// und Verwaltungsbefehle für die Warteschlange.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DefaultConfigPath ist der Pfad der Konfigurationsdatei im Container
const DefaultConfigPath = "/config/config.yaml"

// RootOptions enthält die globalen Flags aller Befehle
type RootOptions struct {
	ConfigPath string
	Format     string // "text" | "json" | "yaml"
	Verbose    bool
}

// ValidFormats sind die erlaubten Ausgabeformate
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand erstellt den Wurzelbefehl
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fiscal-offline",
		Short: "Offline queue and sync engine for the fiscal API",
		Long: `Accepts fiscal API mutations while offline, persists them in a local
queue and replays them once the API is reachable. Read requests are served
from a TTL cache that is invalidated by successful mutations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", DefaultConfigPath, "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewDrainCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
