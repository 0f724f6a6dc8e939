// Package catalog queries the detection datasets: partitioned parquet files in
// object storage, read through an embedded DuckDB instance with the httpfs
// extension. The datasets are produced elsewhere and are append-only; this
// package only reads them.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
)

// Detection is one row of the normal-mode dataset: a single model prediction
// at a position in a recording.
type Detection struct {
	Filename       string  `json:"filename"`
	DeviceID       string  `json:"device_id"`
	Country        string  `json:"country"`
	StartTime      float64 `json:"start_time"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
	Uncertainty    float64 `json:"uncertainty"`
}

// AssignedClip is one row of the pro/expert assignments dataset: a clip with
// the full set of species the model detected in it, assigned to a reviewer.
type AssignedClip struct {
	Filename      string    `json:"filename"`
	DeploymentID  string    `json:"deployment_id"`
	StartTime     float64   `json:"start_time"`
	Species       []string  `json:"species"`
	Confidences   []float64 `json:"confidences"`
	Uncertainties []float64 `json:"uncertainties"`
	UserID        string    `json:"user_id"`
}

// SpeciesCount pairs a scientific name with its detection count.
type SpeciesCount struct {
	ScientificName string `json:"scientific_name"`
	Count          int64  `json:"count"`
}

// Selection identifies a normal-mode candidate set.
type Selection struct {
	Country       string
	DeviceID      string
	Species       string
	MinConfidence float64
}

// Store runs templated SQL against the datasets and caches results. Queries
// that hit the parquet files are slow (seconds), so everything user-facing
// goes through the TTL cache.
type Store struct {
	db          *sql.DB
	normalURL   string
	assignedURL string
	siteInfoURL string
	cache       *gocache.Cache
	assignedTTL time.Duration
	logger      *slog.Logger
}

// Open connects an in-memory DuckDB instance and configures S3 access the way
// the dataset bucket expects it: path-style URLs against a custom endpoint.
func Open(ctx context.Context, settings *conf.Settings) (*Store, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.New(err).
			Component("catalog").
			Category(errors.CategoryCatalogQuery).
			Build()
	}

	useSSL := "true"
	if !settings.S3.UseSSL {
		useSSL = "false"
	}
	setup := []string{
		"INSTALL httpfs;",
		"LOAD httpfs;",
		fmt.Sprintf("SET s3_region='%s';", settings.S3.Region),
		fmt.Sprintf("SET s3_access_key_id='%s';", settings.S3.AccessKeyID),
		fmt.Sprintf("SET s3_secret_access_key='%s';", settings.S3.SecretAccessKey),
		fmt.Sprintf("SET s3_endpoint='%s';", settings.S3.Endpoint),
		fmt.Sprintf("SET s3_use_ssl=%s;", useSSL),
		"SET s3_url_style='path';",
	}
	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.New(err).
				Component("catalog").
				Category(errors.CategoryCatalogQuery).
				Context("statement", stmt).
				Build()
		}
	}

	return &Store{
		db:          db,
		normalURL:   settings.DatasetURL(settings.Dataset.NormalGlob),
		assignedURL: settings.DatasetURL(settings.Dataset.AssignedPath),
		siteInfoURL: settings.DatasetURL(settings.Dataset.SiteInfoKey),
		cache:       gocache.New(settings.Cache.AssignedTTL, 10*time.Minute),
		assignedTTL: settings.Cache.AssignedTTL,
		logger:      logging.ForService("catalog"),
	}, nil
}

// Close releases the embedded database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InvalidateUser drops cached per-user results after a submission so the next
// full refresh sees the new validation.
func (s *Store) InvalidateUser(userID string) {
	s.cache.Delete("assigned:" + userID)
}

// InvalidateSelection drops the cached candidate list for a normal-mode selection.
func (s *Store) InvalidateSelection(sel Selection) {
	s.cache.Delete(selectionCacheKey(sel))
}

func selectionCacheKey(sel Selection) string {
	return fmt.Sprintf("detections:%s|%s|%s|%.2f", sel.Country, sel.DeviceID, sel.Species, sel.MinConfidence)
}

func (s *Store) queryErr(err error, query string) error {
	return errors.New(err).
		Component("catalog").
		Category(errors.CategoryCatalogQuery).
		Context("query", query).
		Build()
}
