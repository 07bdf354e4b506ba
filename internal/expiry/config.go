package expiry

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	ErrMissingBucket       = errors.New("BUCKET is required")
	ErrMissingInputPrefix  = errors.New("INPUT_PREFIX is required")
	ErrMissingOutputPrefix = errors.New("OUTPUT_PREFIX is required")
)

// Config is the filter job's environment: the default bucket swept in
// bulk mode, the input/output prefixes, and the window length.
type Config struct {
	Bucket       string
	InputPrefix  string
	OutputPrefix string
	Months       int
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Bucket:       strings.TrimSpace(os.Getenv("BUCKET")),
		InputPrefix:  strings.TrimSpace(os.Getenv("INPUT_PREFIX")),
		OutputPrefix: strings.TrimSpace(os.Getenv("OUTPUT_PREFIX")),
		Months:       6,
	}
	if v := strings.TrimSpace(os.Getenv("MONTHS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("MONTHS must be a positive integer, got %q", v)
		}
		cfg.Months = n
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrMissingBucket
	}
	if c.InputPrefix == "" {
		return ErrMissingInputPrefix
	}
	if c.OutputPrefix == "" {
		return ErrMissingOutputPrefix
	}
	return nil
}
