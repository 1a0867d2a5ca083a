package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/haivivi/voicebridge/pkg/buffer"
	"github.com/haivivi/voicebridge/pkg/cli"
	"github.com/haivivi/voicebridge/pkg/transcript"
)

var (
	flagReplayJSON bool
	flagReplayJQ   string
	flagReplayTail int
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Print a session transcript from the journal",
	Long: `Print a session transcript from the journal.

Records print in sequence order with direction, frame type and a payload
preview. --json emits the records as JSON lines in the archive export
format; --jq filters each record through a jq expression with the payload
parsed. --tail keeps only the last N records.

Examples:
  voicebridge replay sess_4f9d2a81c03b
  voicebridge replay sess_4f9d2a81c03b --tail 20
  voicebridge replay sess_4f9d2a81c03b --jq 'select(.type == "text") | .payload'`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&flagReplayJSON, "json", false, "print records as JSON lines")
	replayCmd.Flags().StringVar(&flagReplayJQ, "jq", "", "filter records through a jq expression")
	replayCmd.Flags().IntVar(&flagReplayTail, "tail", 0, "print only the last N records")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if cfg.TranscriptDir == "" {
		return errors.New("transcript_dir is not configured")
	}

	var query *gojq.Query
	if flagReplayJQ != "" {
		query, err = gojq.Parse(flagReplayJQ)
		if err != nil {
			return fmt.Errorf("invalid jq expression %q: %w", flagReplayJQ, err)
		}
	}

	journal, err := transcript.Open(transcript.BadgerOptions{Dir: cfg.TranscriptDir})
	if err != nil {
		return err
	}
	defer journal.Close()

	id := args[0]
	records, err := collectRecords(journal, id, flagReplayTail)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("session %s has no records", id)
	}

	switch {
	case query != nil:
		return replayJQ(query, records)
	case flagReplayJSON:
		return replayJSON(records)
	}
	replayPretty(id, records)
	return nil
}

// collectRecords reads one session's records, keeping only the last tail
// records when tail is positive.
func collectRecords(journal transcript.Store, id string, tail int) ([]*transcript.Record, error) {
	if tail > 0 {
		ring := buffer.RingN[*transcript.Record](tail)
		for rec, err := range journal.Session(id) {
			if err != nil {
				return nil, err
			}
			ring.Add(rec)
		}
		return ring.Values(), nil
	}
	var records []*transcript.Record
	for rec, err := range journal.Session(id) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func replayJSON(records []*transcript.Record) error {
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func replayJQ(query *gojq.Query, records []*transcript.Record) error {
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range records {
		iter := query.Run(jqRecord(rec))
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				return fmt.Errorf("jq: %w", err)
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// jqRecord converts a record to the plain value types gojq accepts, with
// the payload parsed so expressions can reach into the wire event.
func jqRecord(rec *transcript.Record) map[string]any {
	var payload any
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		payload = string(rec.Payload)
	}
	return map[string]any{
		"seq":     int(rec.Seq),
		"session": rec.Session,
		"dir":     rec.Dir,
		"type":    rec.Type,
		"at":      int(rec.At),
		"payload": payload,
	}
}

func replayPretty(id string, records []*transcript.Record) {
	st := cli.NewStyles(cli.DefaultTheme)
	fmt.Println(st.Title.Render("session " + id))
	for _, rec := range records {
		ts := time.UnixMilli(rec.At).Format("15:04:05.000")
		head := fmt.Sprintf("%-4s %-14s", rec.Dir, rec.Type)
		fmt.Printf("%s %s %s\n", st.Help.Render(ts), st.Label.Render(head), payloadPreview(rec.Payload))
	}
	span := records[len(records)-1].At - records[0].At
	fmt.Println(st.Help.Render(fmt.Sprintf("%d records, %s", len(records), cli.FormatDuration(span))))
}

// payloadPreview collapses a wire payload to one line, truncated.
func payloadPreview(p []byte) string {
	s := strings.Join(strings.Fields(string(p)), " ")
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... (" + cli.FormatBytesInt(len(p)) + ")"
}
