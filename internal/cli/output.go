package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Exit-Codes der Befehle
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // Durchlauf mit fehlgeschlagenen Operationen
	ExitCommandError = 2 // ungültige Argumente, Datenbank nicht erreichbar
)

// ExitError trägt den Exit-Code eines fehlgeschlagenen Befehls
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError erstellt einen ExitError ohne Ursache
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError versieht einen Fehler mit einem Exit-Code
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode liefert den Exit-Code eines Fehlers, ExitFailure für fremde Fehler
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter schreibt Ergebnisse als Text, JSON oder YAML
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print gibt data im gewählten Format aus. Für Text wird text aufgerufen,
// ohne text-Funktion wird data mit fmt ausgegeben.
func (f *OutputFormatter) Print(data interface{}, text func(w io.Writer) error) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(data)); err != nil {
			return err
		}
		return enc.Close()
	default:
		if text != nil {
			return text(f.Writer)
		}
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
}

// toPlain wandelt data über JSON in Maps und Slices, damit YAML dieselben
// Feldnamen wie JSON verwendet
func toPlain(data interface{}) interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var plain interface{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return data
	}
	return plain
}
