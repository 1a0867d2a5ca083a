package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/haivivi/voicebridge/pkg/archive"
	"github.com/haivivi/voicebridge/pkg/transcript"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run the relay server.

The server accepts WebSocket connections and drives one model session per
connection. Clients speak the Nova Sonic bidirectional event protocol:
sessionStart, promptStart and contentStart configure the session, audioInput
streams microphone audio, and everything the model emits is forwarded back
verbatim. GET /health reports liveness.

Example:
  voicebridge serve -c voicebridge.yaml --listen :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if IsVerbose() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
	logger := slog.Default()

	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if cfg.Vendor == VendorNovaSonic && cfg.VendorURL == "" {
		return fmt.Errorf("vendor_url is required for vendor %s", VendorNovaSonic)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutting down...")
		cancel()
	}()

	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	arch, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}

	rl := newRelay(ctx, cfg, journal, arch, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", rl.handleHealth)
	mux.HandleFunc("/", rl.handleRoot)

	srv := &http.Server{Addr: cfg.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		srv.Shutdown(shCtx)
	}()

	logger.Info("voicebridge: listening", "addr", cfg.Listen, "vendor", cfg.Vendor)
	err = srv.ListenAndServe()

	// Shutdown does not cover upgraded connections; close them directly
	// and wait for their sessions to retire.
	rl.closeAll()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	return nil
}

// openJournal opens the transcript journal: Badger on disk when
// transcript_dir is set, in memory otherwise.
func openJournal(cfg *Config) (transcript.Store, error) {
	if cfg.TranscriptDir == "" {
		return transcript.Open(transcript.BadgerOptions{InMemory: true})
	}
	return transcript.Open(transcript.BadgerOptions{Dir: cfg.TranscriptDir})
}

// openArchive builds the transcript export store, or nil when archiving is
// not configured.
func openArchive(_ context.Context, cfg *Config) (archive.Store, error) {
	switch {
	case cfg.Archive.S3.Bucket != "":
		client := s3.NewFromConfig(s3ClientConfig(cfg.Archive.S3), func(o *s3.Options) {
			if cfg.Archive.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Archive.S3.Endpoint)
				// MinIO and friends serve buckets under the path, not
				// as a subdomain.
				o.UsePathStyle = true
			}
		})
		return archive.NewS3(client, cfg.Archive.S3.Bucket, cfg.Archive.S3.Prefix), nil
	case cfg.Archive.Dir != "":
		return archive.NewLocal(cfg.Archive.Dir)
	}
	return nil, nil
}

// s3ClientConfig assembles the client config from the archive.s3 block.
// Without explicit keys the client sends unsigned requests, which only a
// public or proxy-authorized endpoint will accept.
func s3ClientConfig(s3cfg S3Config) aws.Config {
	awsCfg := aws.Config{Region: s3cfg.Region}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	if s3cfg.AccessKey != "" {
		creds := aws.Credentials{
			AccessKeyID:     s3cfg.AccessKey,
			SecretAccessKey: s3cfg.SecretKey,
		}
		awsCfg.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	} else {
		awsCfg.Credentials = aws.AnonymousCredentials{}
	}
	return awsCfg
}
