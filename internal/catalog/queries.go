package catalog

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
)

// Countries returns the distinct countries present in the normal-mode dataset.
// The list changes only when deployments change, so it is cached without expiry.
func (s *Store) Countries(ctx context.Context) ([]string, error) {
	if cached, ok := s.cache.Get("countries"); ok {
		return cached.([]string), nil
	}

	query := fmt.Sprintf("SELECT DISTINCT country FROM '%s' WHERE country IS NOT NULL ORDER BY country", s.normalURL)
	values, err := s.queryStrings(ctx, query)
	if err != nil {
		return nil, err
	}
	s.cache.Set("countries", values, gocache.NoExpiration)
	return values, nil
}

// DevicesForCountry returns the distinct device ids with detections in country.
func (s *Store) DevicesForCountry(ctx context.Context, country string) ([]string, error) {
	cacheKey := "devices:" + country
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]string), nil
	}

	query := fmt.Sprintf("SELECT DISTINCT device_id FROM '%s' WHERE country = ? ORDER BY device_id", s.normalURL)
	values, err := s.queryStrings(ctx, query, country)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, values, gocache.NoExpiration)
	return values, nil
}

// SpeciesForDevice returns the distinct scientific names detected by a device.
func (s *Store) SpeciesForDevice(ctx context.Context, country, deviceID string) ([]string, error) {
	cacheKey := "species:" + country + "|" + deviceID
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]string), nil
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT "scientific name" FROM '%s' WHERE country = ? AND device_id = ? ORDER BY "scientific name"`,
		s.normalURL)
	values, err := s.queryStrings(ctx, query, country, deviceID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, values, gocache.NoExpiration)
	return values, nil
}

// Detections returns the candidate clips for a normal-mode selection, ordered
// by (filename, start time) so callers see a stable candidate set.
func (s *Store) Detections(ctx context.Context, sel Selection) ([]Detection, error) {
	cacheKey := selectionCacheKey(sel)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]Detection), nil
	}

	query := fmt.Sprintf(`
	SELECT filename, device_id, country, "start time", "scientific name", confidence, "max uncertainty"
	FROM '%s'
	WHERE country = ? AND device_id = ? AND "scientific name" = ? AND confidence >= ?
	ORDER BY filename, "start time"`, s.normalURL)

	rows, err := s.db.QueryContext(ctx, query, sel.Country, sel.DeviceID, sel.Species, sel.MinConfidence)
	if err != nil {
		return nil, s.queryErr(err, "detections")
	}
	defer rows.Close()

	var detections []Detection
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.Filename, &d.DeviceID, &d.Country, &d.StartTime,
			&d.ScientificName, &d.Confidence, &d.Uncertainty); err != nil {
			return nil, s.queryErr(err, "detections")
		}
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryErr(err, "detections")
	}

	s.cache.Set(cacheKey, detections, s.assignedTTL)
	return detections, nil
}

// AssignedClips returns all clips assigned to a reviewer, ordered by
// (filename, start time). userID is compared as text because the assignments
// file has carried both numeric and string ids over time.
func (s *Store) AssignedClips(ctx context.Context, userID string) ([]AssignedClip, error) {
	cacheKey := "assigned:" + userID
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]AssignedClip), nil
	}

	query := fmt.Sprintf(`
	SELECT fullPath, deployment_id, "start time",
	       CAST("scientific name" AS VARCHAR),
	       CAST(confidence AS VARCHAR),
	       CAST("max uncertainty" AS VARCHAR),
	       CAST(userID AS VARCHAR)
	FROM '%s'
	WHERE CAST(userID AS VARCHAR) = CAST(? AS VARCHAR)
	ORDER BY fullPath, "start time"`, s.assignedURL)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, s.queryErr(err, "assigned-clips")
	}
	defer rows.Close()

	var clips []AssignedClip
	for rows.Next() {
		var clip AssignedClip
		var species, confidences, uncertainties string
		if err := rows.Scan(&clip.Filename, &clip.DeploymentID, &clip.StartTime,
			&species, &confidences, &uncertainties, &clip.UserID); err != nil {
			return nil, s.queryErr(err, "assigned-clips")
		}
		clip.Species = parseStringArray(species)
		clip.Confidences = parseFloatArray(confidences)
		clip.Uncertainties = parseFloatArray(uncertainties)
		clips = append(clips, clip)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryErr(err, "assigned-clips")
	}

	s.cache.Set(cacheKey, clips, s.assignedTTL)
	return clips, nil
}

// UserHasAssignments reports whether any clip is assigned to userID. Query
// failures read as "no assignments": the login gate fails closed.
func (s *Store) UserHasAssignments(ctx context.Context, userID string) bool {
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM '%s' WHERE CAST(userID AS VARCHAR) = CAST(? AS VARCHAR)", s.assignedURL)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		s.logger.Warn("assignment check failed", "user_id", userID, "error", err)
		return false
	}
	return count > 0
}

// TopSpecies returns the n most-detected species in the assignments dataset,
// used for the expert checklist.
func (s *Store) TopSpecies(ctx context.Context, n int) ([]SpeciesCount, error) {
	cacheKey := fmt.Sprintf("top-species:%d", n)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]SpeciesCount), nil
	}

	// The scientific name column holds arrays in the assignments file; unnest
	// before counting so each detected species counts individually.
	query := fmt.Sprintf(`
	SELECT species, COUNT(*) AS detection_count
	FROM (SELECT UNNEST("scientific name") AS species FROM '%s')
	GROUP BY species
	ORDER BY detection_count DESC
	LIMIT %d`, s.assignedURL, n)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.queryErr(err, "top-species")
	}
	defer rows.Close()

	var counts []SpeciesCount
	for rows.Next() {
		var sc SpeciesCount
		if err := rows.Scan(&sc.ScientificName, &sc.Count); err != nil {
			return nil, s.queryErr(err, "top-species")
		}
		counts = append(counts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryErr(err, "top-species")
	}

	s.cache.Set(cacheKey, counts, gocache.NoExpiration)
	return counts, nil
}

// SiteNames maps device ids to human-readable site names from site_info.csv.
func (s *Store) SiteNames(ctx context.Context) (map[string]string, error) {
	if cached, ok := s.cache.Get("site-names"); ok {
		return cached.(map[string]string), nil
	}

	query := fmt.Sprintf("SELECT DeviceID, Site FROM '%s'", s.siteInfoURL)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.queryErr(err, "site-names")
	}
	defer rows.Close()

	sites := make(map[string]string)
	for rows.Next() {
		var device, site string
		if err := rows.Scan(&device, &site); err != nil {
			return nil, s.queryErr(err, "site-names")
		}
		sites[device] = site
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryErr(err, "site-names")
	}

	s.cache.Set("site-names", sites, gocache.NoExpiration)
	return sites, nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.queryErr(err, query)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, s.queryErr(err, query)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryErr(err, query)
	}
	return values, nil
}
