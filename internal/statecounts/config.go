package statecounts

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrMissingDatabase      = errors.New("ATHENA_DATABASE is required")
	ErrMissingTable         = errors.New("ATHENA_TABLE is required")
	ErrMissingResultsPrefix = errors.New("RESULTS_S3_PREFIX is required")
)

// Config holds everything the on-upload query trigger reads from the
// environment. It is built once at startup and threaded through the
// handler; nothing reads env vars after that.
type Config struct {
	Database          string
	Table             string
	Workgroup         string
	ResultsPrefix     string // s3://bucket/prefix/
	UnloadFormat      string
	UnloadDelimiter   string
	UnloadCompression string
	LedgerTable       string // optional; empty disables the execution ledger
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Database:          strings.TrimSpace(os.Getenv("ATHENA_DATABASE")),
		Table:             strings.TrimSpace(os.Getenv("ATHENA_TABLE")),
		Workgroup:         strings.TrimSpace(os.Getenv("ATHENA_WORKGROUP")),
		ResultsPrefix:     strings.TrimSpace(os.Getenv("RESULTS_S3_PREFIX")),
		UnloadFormat:      strings.TrimSpace(os.Getenv("UNLOAD_FORMAT")),
		UnloadDelimiter:   os.Getenv("UNLOAD_DELIM"),
		UnloadCompression: strings.TrimSpace(os.Getenv("UNLOAD_COMPRESSION")),
		LedgerTable:       strings.TrimSpace(os.Getenv("EXECUTION_LEDGER_TABLE")),
	}
	if cfg.Workgroup == "" {
		cfg.Workgroup = "primary"
	}
	if cfg.UnloadFormat == "" {
		cfg.UnloadFormat = "TEXTFILE"
	}
	if cfg.UnloadDelimiter == "" {
		cfg.UnloadDelimiter = ","
	}
	if cfg.UnloadCompression == "" {
		cfg.UnloadCompression = "NONE"
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Database == "" {
		return ErrMissingDatabase
	}
	if c.Table == "" {
		return ErrMissingTable
	}
	if c.ResultsPrefix == "" {
		return ErrMissingResultsPrefix
	}
	if !strings.HasPrefix(c.ResultsPrefix, "s3://") {
		return fmt.Errorf("RESULTS_S3_PREFIX must start with s3://, got %q", c.ResultsPrefix)
	}
	return nil
}
