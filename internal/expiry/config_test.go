package expiry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BUCKET", "records")
	t.Setenv("INPUT_PREFIX", "data/")
	t.Setenv("OUTPUT_PREFIX", "filtered/")
	t.Setenv("MONTHS", "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "records", cfg.Bucket)
	assert.Equal(t, 6, cfg.Months, "window defaults to six months")
}

func TestConfigFromEnvMonthsOverride(t *testing.T) {
	t.Setenv("BUCKET", "records")
	t.Setenv("INPUT_PREFIX", "data/")
	t.Setenv("OUTPUT_PREFIX", "filtered/")
	t.Setenv("MONTHS", "12")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Months)
}

func TestConfigFromEnvBadMonths(t *testing.T) {
	t.Setenv("BUCKET", "records")
	t.Setenv("INPUT_PREFIX", "data/")
	t.Setenv("OUTPUT_PREFIX", "filtered/")
	t.Setenv("MONTHS", "soon")

	_, err := ConfigFromEnv()
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "missing bucket", cfg: Config{InputPrefix: "a", OutputPrefix: "b", Months: 6}, wantErr: ErrMissingBucket},
		{name: "missing input prefix", cfg: Config{Bucket: "r", OutputPrefix: "b", Months: 6}, wantErr: ErrMissingInputPrefix},
		{name: "missing output prefix", cfg: Config{Bucket: "r", InputPrefix: "a", Months: 6}, wantErr: ErrMissingOutputPrefix},
		{name: "complete", cfg: Config{Bucket: "r", InputPrefix: "a", OutputPrefix: "b", Months: 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
