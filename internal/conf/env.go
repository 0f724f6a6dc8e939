// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation.
// The S3_* names match the deployment environment of the original dashboard.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"s3.endpoint", "S3_ENDPOINT", validateEnvEndpoint},
		{"s3.accesskeyid", "S3_ACCESS_KEY_ID", nil},
		{"s3.secretaccesskey", "S3_SECRET_ACCESS_KEY", nil},
		{"s3.bucket", "S3_BUCKET", nil},
		{"s3.region", "S3_REGION", nil},

		{"species.topcount", "PRO_TOP_SPECIES_COUNT", validateEnvPositiveInt},

		{"server.host", "TABMON_HOST", nil},
		{"server.port", "TABMON_PORT", validateEnvPort},
		{"server.debug", "TABMON_DEBUG", validateEnvBool},

		{"session.secret", "TABMON_SESSION_SECRET", nil},
		{"log.level", "TABMON_LOG_LEVEL", validateEnvLogLevel},
		{"log.file", "TABMON_LOG_FILE", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	bindings := getEnvBindings()
	var warnings []string

	for _, binding := range bindings {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0":
		return nil
	}
	return fmt.Errorf("must be a boolean (true/false/1/0)")
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}

// validateEnvEndpoint rejects endpoints carrying a scheme; the S3 client adds
// https:// itself, mirroring how the bucket endpoint has always been configured.
func validateEnvEndpoint(value string) error {
	if strings.Contains(value, "://") {
		return fmt.Errorf("must be a bare host, without scheme")
	}
	if _, err := url.Parse("https://" + value); err != nil {
		return fmt.Errorf("not a valid host: %w", err)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("must be one of trace, debug, info, warn, error")
}
