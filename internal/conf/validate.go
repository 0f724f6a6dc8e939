package conf

import (
	"fmt"
	"strings"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
)

// Validate checks settings for values the service cannot run with. Collecting
// all problems at once saves the operator a restart per mistake.
func (s *Settings) Validate() error {
	var problems []string

	if s.S3.Bucket == "" {
		problems = append(problems, "s3.bucket is required (S3_BUCKET)")
	}
	if s.S3.Endpoint == "" {
		problems = append(problems, "s3.endpoint is required (S3_ENDPOINT)")
	}
	if strings.Contains(s.S3.Endpoint, "://") {
		problems = append(problems, "s3.endpoint must be a bare host without scheme")
	}

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", s.Server.Port))
	}

	if s.Species.TopCount < 1 {
		problems = append(problems, "species.topcount must be at least 1")
	}

	if s.Clip.SampleRate < 8000 {
		problems = append(problems, fmt.Sprintf("clip.samplerate %d is below 8 kHz", s.Clip.SampleRate))
	}
	if s.Clip.LeadSeconds < 0 || s.Clip.TailSeconds <= 0 {
		problems = append(problems, "clip lead/tail seconds must be non-negative with a positive tail")
	}

	if s.Cache.ValidatedTTL <= 0 || s.Cache.AssignedTTL <= 0 || s.Cache.ClipTTL <= 0 {
		problems = append(problems, "cache TTLs must be positive")
	}

	if len(problems) > 0 {
		return errors.Newf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - ")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
