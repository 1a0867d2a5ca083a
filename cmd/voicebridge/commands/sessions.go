package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicebridge/pkg/cli"
	"github.com/haivivi/voicebridge/pkg/transcript"
)

var flagArchived bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List journaled sessions",
	Long: `List the sessions in the transcript journal with record counts,
duration and size.

With --archived, list exported transcripts in the archive store instead.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&flagArchived, "archived", false, "list exported transcripts in the archive store")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagArchived {
		return listArchived(cmd.Context(), cfg)
	}
	if cfg.TranscriptDir == "" {
		return errors.New("transcript_dir is not configured")
	}

	journal, err := transcript.Open(transcript.BadgerOptions{Dir: cfg.TranscriptDir})
	if err != nil {
		return err
	}
	defer journal.Close()

	st := cli.NewStyles(cli.DefaultTheme)
	n := 0
	for id, err := range journal.Sessions() {
		if err != nil {
			return err
		}
		summary, err := sessionSummary(journal, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", st.Label.Render(id), st.Help.Render(summary))
		n++
	}
	if n == 0 {
		cli.PrintInfo("no sessions journaled")
	}
	return nil
}

// sessionSummary counts one session's records and spans its timestamps.
func sessionSummary(journal transcript.Store, id string) (string, error) {
	var (
		n           int
		first, last int64
		size        int64
	)
	for rec, err := range journal.Session(id) {
		if err != nil {
			return "", err
		}
		if n == 0 {
			first = rec.At
		}
		last = rec.At
		size += int64(len(rec.Payload))
		n++
	}
	return fmt.Sprintf("%d records  %s  %s", n, cli.FormatDuration(last-first), cli.FormatBytes(size)), nil
}

func listArchived(ctx context.Context, cfg *Config) error {
	arch, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if arch == nil {
		return errors.New("archive is not configured")
	}
	n := 0
	for p, err := range arch.List(ctx, "sessions/") {
		if err != nil {
			return err
		}
		fmt.Println(p)
		n++
	}
	if n == 0 {
		cli.PrintInfo("no archived transcripts")
	}
	return nil
}
