package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration. It is resolved once at startup
// and read-only afterwards; the dispatcher and adapters receive it at
// construction time.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Grobid  GrobidConfig  `mapstructure:"grobid"`
	Tika    TikaConfig    `mapstructure:"tika"`
	Visual  VisualConfig  `mapstructure:"visual"`
	Chunker ChunkerConfig `mapstructure:"chunker"`
	LLM     LLMConfig     `mapstructure:"llm"`
	OCR     OCRConfig     `mapstructure:"ocr"`

	Partition PartitionConfig `mapstructure:"partition"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

// PartitionConfig points at the Unstructured-style partitioner service.
type PartitionConfig struct {
	URL        string        `mapstructure:"url"`
	Strategy   string        `mapstructure:"strategy"`
	MinTextLen int           `mapstructure:"min_text_len"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PipelineConfig selects pipeline variants.
type PipelineConfig struct {
	// ScientificPDF swaps the pdf recipe for the GROBID-based pipeline
	// with scan detection and the standard chunker.
	ScientificPDF bool `mapstructure:"scientific_pdf"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	BindAddr        string        `mapstructure:"bind_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// MetricsConfig contains metrics listener configuration
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BindAddr string `mapstructure:"bind_addr"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BatchConfig sizes the batch executor.
type BatchConfig struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
}

// GrobidConfig points at the GROBID service.
type GrobidConfig struct {
	URL      string        `mapstructure:"url"`
	MaxPages int           `mapstructure:"max_pages"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TikaConfig points at the Tika server.
type TikaConfig struct {
	URL         string        `mapstructure:"url"`
	OCRStrategy string        `mapstructure:"ocr_strategy"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// VisualConfig bounds the visual page extractor.
type VisualConfig struct {
	MaxPages int `mapstructure:"max_pages"`
	DPI      int `mapstructure:"dpi"`
}

// ChunkerConfig carries the simple-chunker knobs.
type ChunkerConfig struct {
	MaxChunkLen   int `mapstructure:"max_chunk_len"`
	ChunkOverlap  int `mapstructure:"chunk_overlap"`
	LinesPerChunk int `mapstructure:"lines_per_chunk"`
}

// LLMConfig points at the LLM gateway.
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxInputTokens int           `mapstructure:"max_input_tokens"`
}

// OCRConfig bounds the OCR fallback for scanned PDFs.
type OCRConfig struct {
	URL          string        `mapstructure:"url"`
	MaxPages     int           `mapstructure:"max_pages"`
	TextProbeMin int           `mapstructure:"text_probe_min"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OCR strategies accepted by the Tika adapter.
var tikaOCRStrategies = map[string]bool{
	"NO_OCR":                  true,
	"AUTO":                    true,
	"OCR_ONLY":                true,
	"OCR_AND_TEXT_EXTRACTION": true,
}

// Load resolves the configuration from defaults, an optional config file,
// and PDFERRET_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PDFERRET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects impossible settings before anything starts.
func (c *Config) Validate() error {
	if !tikaOCRStrategies[c.Tika.OCRStrategy] {
		return fmt.Errorf("invalid tika ocr strategy: %s", c.Tika.OCRStrategy)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch workers must be positive, got %d", c.Batch.Workers)
	}
	if c.Batch.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Batch.BatchSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	workers := runtime.NumCPU()

	v.SetDefault("server.bind_addr", ":8012")
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(512<<20))

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("batch.workers", workers)
	v.SetDefault("batch.batch_size", 2*workers)

	v.SetDefault("grobid.url", "http://localhost:8070")
	v.SetDefault("grobid.max_pages", 30)
	v.SetDefault("grobid.timeout", 2*time.Minute)

	v.SetDefault("tika.url", "http://localhost:9998")
	v.SetDefault("tika.ocr_strategy", "NO_OCR")
	v.SetDefault("tika.timeout", 2*time.Minute)

	v.SetDefault("visual.max_pages", 3)
	v.SetDefault("visual.dpi", 100)

	v.SetDefault("chunker.max_chunk_len", 2000)
	v.SetDefault("chunker.chunk_overlap", 100)
	v.SetDefault("chunker.lines_per_chunk", 12)

	v.SetDefault("llm.base_url", "http://localhost:8080/v1")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_input_tokens", 32768)

	v.SetDefault("partition.url", "http://localhost:8000")
	v.SetDefault("partition.strategy", "auto")
	v.SetDefault("partition.min_text_len", 20)
	v.SetDefault("partition.timeout", 5*time.Minute)

	v.SetDefault("pipeline.scientific_pdf", false)

	v.SetDefault("ocr.url", "http://localhost:8884")
	v.SetDefault("ocr.max_pages", 30)
	v.SetDefault("ocr.text_probe_min", 50)
	v.SetDefault("ocr.timeout", 5*time.Minute)
}
