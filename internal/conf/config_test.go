package conf

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	require.NoError(t, v.Unmarshal(settings))
	return settings
}

func TestDefaults(t *testing.T) {
	s := defaultSettings(t)

	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, "merged_predictions_light/*/*/*.parquet", s.Dataset.NormalGlob)
	assert.Equal(t, "validations", s.Validations.NormalPrefix)
	assert.Equal(t, "validations_pro", s.Validations.ProPrefix)
	assert.Equal(t, "validations_expert", s.Validations.ExpertPrefix)
	assert.Equal(t, 10, s.Species.TopCount)
	assert.Equal(t, 48000, s.Clip.SampleRate)
	assert.InDelta(t, 3.0, s.Clip.LeadSeconds, 0.001)
	assert.InDelta(t, 6.0, s.Clip.TailSeconds, 0.001)
	assert.Equal(t, 5*time.Minute, s.Cache.ValidatedTTL)
	assert.Equal(t, 10*time.Minute, s.Cache.ClipTTL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "storage.example.org")
	t.Setenv("S3_BUCKET", "tabmon")
	t.Setenv("PRO_TOP_SPECIES_COUNT", "25")

	v := viper.New()
	setDefaults(v)
	require.NoError(t, bindEnvVars(v))

	settings := &Settings{}
	require.NoError(t, v.Unmarshal(settings))

	assert.Equal(t, "storage.example.org", settings.S3.Endpoint)
	assert.Equal(t, "tabmon", settings.S3.Bucket)
	assert.Equal(t, 25, settings.Species.TopCount)
	require.NoError(t, settings.Validate())
}

func TestEnvValidationRejectsBadValues(t *testing.T) {
	t.Setenv("PRO_TOP_SPECIES_COUNT", "many")
	t.Setenv("S3_ENDPOINT", "https://storage.example.org")

	v := viper.New()
	setDefaults(v)
	err := bindEnvVars(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRO_TOP_SPECIES_COUNT")
	assert.Contains(t, err.Error(), "S3_ENDPOINT")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	s := defaultSettings(t)
	// Bucket and endpoint are empty by default.
	s.Species.TopCount = 0

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.bucket")
	assert.Contains(t, err.Error(), "s3.endpoint")
	assert.Contains(t, err.Error(), "species.topcount")
}

func TestDatasetURL(t *testing.T) {
	s := defaultSettings(t)
	s.S3.Bucket = "tabmon"
	assert.Equal(t, "s3://tabmon/site_info.csv", s.DatasetURL(s.Dataset.SiteInfoKey))
}
