package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how Output renders a value.
type OutputFormat string

const (
	// FormatYAML renders as YAML, the default for terminal output.
	FormatYAML OutputFormat = "yaml"
	// FormatJSON renders as indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatRaw writes strings and byte slices verbatim; anything else
	// falls back to YAML.
	FormatRaw OutputFormat = "raw"
)

// OutputOptions configures Output.
type OutputOptions struct {
	// Format selects the rendering; empty means FormatYAML.
	Format OutputFormat

	// File writes to the named file instead of stdout.
	File string

	// Writer overrides File and stdout when set.
	Writer io.Writer
}

// Output renders result to the configured destination.
func Output(result any, opts OutputOptions) error {
	w := io.Writer(os.Stdout)
	switch {
	case opts.Writer != nil:
		w = opts.Writer
	case opts.File != "":
		f, err := os.Create(opts.File)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatYAML, "":
		return writeYAML(w, result)
	case FormatRaw:
		switch v := result.(type) {
		case []byte:
			_, err := w.Write(v)
			return err
		case string:
			_, err := io.WriteString(w, v)
			return err
		default:
			return writeYAML(w, result)
		}
	}
	return fmt.Errorf("unsupported output format %q", opts.Format)
}

func writeYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("render output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// PrintSuccess prints a checkmarked message to stdout.
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

// PrintInfo prints an informational message to stdout.
func PrintInfo(format string, args ...any) {
	fmt.Printf("ℹ "+format+"\n", args...)
}
