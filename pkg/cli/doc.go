// Package cli provides common terminal utilities for the voicebridge
// command-line tools.
//
// This package includes:
//   - Output formatting (JSON, YAML, raw)
//   - Styled terminal output (lipgloss themes)
//   - Human readable formatting for sizes and durations
//
// Example usage:
//
//	// Output a result
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
//
//	// Styled headings
//	st := cli.NewStyles(cli.DefaultTheme)
//	fmt.Println(st.Title.Render("session " + id))
package cli
