package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/voicebridge/pkg/s2s/tool/builtin"
)

// Backend vendors.
const (
	VendorNovaSonic = "novasonic"
	VendorOpenAIRT  = "openairt"
)

// DefaultOpenAIRealtimeURL is the OpenAI Realtime WebSocket endpoint.
const DefaultOpenAIRealtimeURL = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview"

// Config is the voicebridge configuration file.
type Config struct {
	// Listen is the relay listen address.
	Listen string `yaml:"listen,omitempty"`

	// Vendor selects the model backend: "novasonic" or "openairt".
	Vendor string `yaml:"vendor,omitempty"`

	// VendorURL is the backend WebSocket endpoint. Required for
	// novasonic; defaults to the OpenAI endpoint for openairt.
	VendorURL string `yaml:"vendor_url,omitempty"`

	// APIKey authenticates against the backend.
	APIKey string `yaml:"api_key,omitempty"`

	// Voice is the default vendor voice. Clients may override it in
	// their opening sequence.
	Voice string `yaml:"voice,omitempty"`

	// SystemPrompt is the default system prompt. Clients may override
	// it in their opening sequence.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	TopP        float64 `yaml:"top_p,omitempty"`

	// TranscriptDir is the Badger journal directory. Empty means the
	// journal is kept in memory and lost on exit.
	TranscriptDir string `yaml:"transcript_dir,omitempty"`

	// DecodeErrorLimit ends a session after this many consecutive
	// undecodable backend payloads (0 = session default).
	DecodeErrorLimit int `yaml:"decode_error_limit,omitempty"`

	// CloseTimeout bounds session teardown, in seconds (0 = session
	// default).
	CloseTimeout int `yaml:"close_timeout,omitempty"`

	// DialRetries is the number of backend dial retries (0 = transport
	// default).
	DialRetries int `yaml:"dial_retries,omitempty"`

	// Archive configures transcript export on session end.
	Archive ArchiveConfig `yaml:"archive,omitempty"`

	// KB seeds the knowledge base tool. The tool is registered only
	// when entries are present.
	KB []builtin.KBEntry `yaml:"kb,omitempty"`

	// Agent configures the delegating agent tool. The tool is
	// registered only when an API key is present.
	Agent AgentConfig `yaml:"agent,omitempty"`

	// SlowToolDelay is the stall of the demo weather tool, in seconds
	// (0 = tool default).
	SlowToolDelay int `yaml:"slow_tool_delay,omitempty"`
}

// ArchiveConfig selects where finished transcripts are exported. Local dir
// and S3 are mutually exclusive; neither means no export.
type ArchiveConfig struct {
	// Dir exports transcripts under a local directory.
	Dir string `yaml:"dir,omitempty"`

	// S3 exports transcripts to a bucket.
	S3 S3Config `yaml:"s3,omitempty"`
}

// S3Config locates the archive bucket. Endpoint points the client at an
// S3-compatible store (MinIO, R2); empty means Amazon S3.
type S3Config struct {
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// AgentConfig configures the delegating agent tool.
type AgentConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
	System  string `yaml:"system,omitempty"`
}

// LoadConfig reads and validates the config file at path. A missing file
// yields the defaults, so commands that need no configuration still work.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Listen: ":8080",
		Vendor: VendorNovaSonic,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Vendor == "" {
		cfg.Vendor = VendorNovaSonic
	}
	switch cfg.Vendor {
	case VendorNovaSonic:
	case VendorOpenAIRT:
		if cfg.VendorURL == "" {
			cfg.VendorURL = DefaultOpenAIRealtimeURL
		}
	default:
		return nil, fmt.Errorf("parse %s: unknown vendor %q (want %s or %s)",
			path, cfg.Vendor, VendorNovaSonic, VendorOpenAIRT)
	}
	if cfg.Archive.Dir != "" && cfg.Archive.S3.Bucket != "" {
		return nil, fmt.Errorf("parse %s: archive.dir and archive.s3 are mutually exclusive", path)
	}
	if cfg.Archive.S3.Bucket != "" && cfg.Archive.S3.Region == "" && cfg.Archive.S3.Endpoint == "" {
		return nil, fmt.Errorf("parse %s: archive.s3.region is required", path)
	}

	return cfg, nil
}
