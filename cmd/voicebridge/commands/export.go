package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicebridge/pkg/archive"
	"github.com/haivivi/voicebridge/pkg/cli"
	"github.com/haivivi/voicebridge/pkg/transcript"
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a journaled session to the archive store",
	Long: `Export one journaled session to the configured archive store as JSON
lines, the same format serve writes on session end. Useful for backfilling
an archive enabled after the fact.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if cfg.TranscriptDir == "" {
		return errors.New("transcript_dir is not configured")
	}
	arch, err := openArchive(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if arch == nil {
		return errors.New("archive is not configured")
	}

	journal, err := transcript.Open(transcript.BadgerOptions{Dir: cfg.TranscriptDir})
	if err != nil {
		return err
	}
	defer journal.Close()

	id := args[0]
	path, err := archive.ExportSession(cmd.Context(), arch, journal, id)
	if err != nil {
		return err
	}
	cli.PrintSuccess("session %s exported to %s", id, path)
	return nil
}
