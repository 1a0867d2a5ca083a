package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCmd executes the root command with args, capturing stdout and stderr.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	// Reset global flags to avoid state pollution between tests.
	flagVerbose = false
	flagListen = ""
	flagArchived = false
	flagReplayJSON = false
	flagReplayJQ = ""
	flagReplayTail = 0
	flagToolsJSON = false

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	// Reset all cobra command flag state to prevent leaks between tests.
	resetFlags(rootCmd)

	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicebridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8080")
	}
	if cfg.Vendor != VendorNovaSonic {
		t.Errorf("Vendor = %q, want %q", cfg.Vendor, VendorNovaSonic)
	}
}

func TestLoadConfigValues(t *testing.T) {
	path := writeConfig(t, `listen: ":9000"
vendor: openairt
api_key: sk-test
voice: alloy
system_prompt: Be brief.
max_tokens: 1024
temperature: 0.7
transcript_dir: /var/lib/voicebridge/journal
decode_error_limit: 5
close_timeout: 10
archive:
  dir: /var/lib/voicebridge/archive
kb:
  - title: Hours
    content: Open 9 to 5.
agent:
  api_key: sk-agent
  model: gpt-4o-mini
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Vendor != VendorOpenAIRT {
		t.Errorf("Vendor = %q", cfg.Vendor)
	}
	if cfg.VendorURL != DefaultOpenAIRealtimeURL {
		t.Errorf("VendorURL = %q, want the OpenAI default", cfg.VendorURL)
	}
	if cfg.APIKey != "sk-test" || cfg.Voice != "alloy" || cfg.SystemPrompt != "Be brief." {
		t.Errorf("session defaults = %q %q %q", cfg.APIKey, cfg.Voice, cfg.SystemPrompt)
	}
	if cfg.MaxTokens != 1024 || cfg.Temperature != 0.7 {
		t.Errorf("inference = %d %v", cfg.MaxTokens, cfg.Temperature)
	}
	if cfg.DecodeErrorLimit != 5 || cfg.CloseTimeout != 10 {
		t.Errorf("limits = %d %d", cfg.DecodeErrorLimit, cfg.CloseTimeout)
	}
	if cfg.Archive.Dir != "/var/lib/voicebridge/archive" {
		t.Errorf("Archive.Dir = %q", cfg.Archive.Dir)
	}
	if len(cfg.KB) != 1 || cfg.KB[0].Title != "Hours" || cfg.KB[0].Content != "Open 9 to 5." {
		t.Errorf("KB = %+v", cfg.KB)
	}
	if cfg.Agent.APIKey != "sk-agent" || cfg.Agent.Model != "gpt-4o-mini" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
}

func TestLoadConfigNovaSonicKeepsVendorURL(t *testing.T) {
	path := writeConfig(t, "vendor: novasonic\nvendor_url: wss://gw.internal/sonic\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.VendorURL != "wss://gw.internal/sonic" {
		t.Errorf("VendorURL = %q", cfg.VendorURL)
	}
}

func TestLoadConfigUnknownVendor(t *testing.T) {
	path := writeConfig(t, "vendor: hal9000\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "unknown vendor") {
		t.Fatalf("err = %v, want unknown vendor", err)
	}
}

func TestLoadConfigArchiveConflict(t *testing.T) {
	path := writeConfig(t, "archive:\n  dir: /tmp/a\n  s3:\n    bucket: b\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("err = %v, want mutually exclusive", err)
	}
}

func TestLoadConfigS3(t *testing.T) {
	path := writeConfig(t, `archive:
  s3:
    bucket: transcripts
    prefix: prod
    endpoint: http://minio:9000
    access_key: minioadmin
    secret_key: minioadmin
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	s3 := cfg.Archive.S3
	if s3.Bucket != "transcripts" || s3.Prefix != "prod" {
		t.Errorf("s3 = %+v", s3)
	}
	if s3.Endpoint != "http://minio:9000" || s3.AccessKey != "minioadmin" {
		t.Errorf("s3 endpoint config = %+v", s3)
	}
}

func TestLoadConfigS3RequiresRegion(t *testing.T) {
	path := writeConfig(t, "archive:\n  s3:\n    bucket: transcripts\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "archive.s3.region") {
		t.Fatalf("err = %v, want region error", err)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted malformed yaml")
	}
}
