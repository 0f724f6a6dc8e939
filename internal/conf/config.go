// Package conf handles the settings of the validation service: YAML config file
// loading through viper, environment variable bindings and validation.
package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
)

// ServerSettings holds the HTTP server configuration.
type ServerSettings struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Debug bool   `mapstructure:"debug"`
}

// S3Settings holds object storage connection settings. The endpoint is a bare
// host (no scheme); path-style addressing is always used, matching the
// self-hosted deployment the service runs against.
type S3Settings struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"accesskeyid"`
	SecretAccessKey string `mapstructure:"secretaccesskey"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	UseSSL          bool   `mapstructure:"usessl"`
}

// DatasetSettings locates the detection datasets inside the bucket.
type DatasetSettings struct {
	// NormalGlob is the partitioned parquet glob for anonymous validation,
	// relative to the bucket root.
	NormalGlob string `mapstructure:"normalglob"`
	// AssignedPath is the parquet file carrying per-user assignments
	// (userID column) for pro and expert modes.
	AssignedPath string `mapstructure:"assignedpath"`
	// SiteInfoKey is the CSV mapping DeviceID to Site display names.
	SiteInfoKey string `mapstructure:"siteinfokey"`
}

// ValidationSettings holds the per-mode prefixes for validation session files.
type ValidationSettings struct {
	NormalPrefix string `mapstructure:"normalprefix"`
	ProPrefix    string `mapstructure:"proprefix"`
	ExpertPrefix string `mapstructure:"expertprefix"`
}

// SpeciesSettings configures species naming and the expert checklist.
type SpeciesSettings struct {
	// TranslationsPath is the local CSV with multilingual species names.
	TranslationsPath string `mapstructure:"translationspath"`
	// TopCount is the number of species on the expert checklist.
	TopCount int `mapstructure:"topcount"`
}

// ClipSettings controls audio clip extraction.
type ClipSettings struct {
	SampleRate  int     `mapstructure:"samplerate"`
	LeadSeconds float64 `mapstructure:"leadseconds"`
	TailSeconds float64 `mapstructure:"tailseconds"`
}

// CacheSettings holds TTLs for the service-side caches.
type CacheSettings struct {
	ValidatedTTL time.Duration `mapstructure:"validatedttl"`
	AssignedTTL  time.Duration `mapstructure:"assignedttl"`
	ClipTTL      time.Duration `mapstructure:"clipttl"`
}

// SessionSettings configures the session cookie.
type SessionSettings struct {
	CookieName string `mapstructure:"cookiename"`
	Secret     string `mapstructure:"secret"`
	MaxAge     int    `mapstructure:"maxage"`
}

// LogSettings configures file logging.
type LogSettings struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Settings is the root configuration object.
type Settings struct {
	Server      ServerSettings     `mapstructure:"server"`
	S3          S3Settings         `mapstructure:"s3"`
	Dataset     DatasetSettings    `mapstructure:"dataset"`
	Validations ValidationSettings `mapstructure:"validations"`
	Species     SpeciesSettings    `mapstructure:"species"`
	Clip        ClipSettings       `mapstructure:"clip"`
	Cache       CacheSettings      `mapstructure:"cache"`
	Session     SessionSettings    `mapstructure:"session"`
	Log         LogSettings        `mapstructure:"log"`
}

// DatasetURL returns the s3:// URL for a dataset path relative to the bucket.
func (s *Settings) DatasetURL(relative string) string {
	return fmt.Sprintf("s3://%s/%s", s.S3.Bucket, relative)
}

// Load reads settings from an optional config file, applies environment
// variable overrides and validates the result.
func Load() (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tabmon-species-api")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		// Running on defaults plus environment variables is fine.
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}
