// Package clips locates raw recordings in object storage and extracts the
// short audio window around a detection for review.
package clips

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
	"github.com/NINAnor/tabmon-species-api/internal/objectstore"
)

// projectPrefix is the bucket directory holding raw recordings; per-country
// deployments append a suffix.
const projectPrefix = "proj_tabmon_NINA"

// countrySuffixes maps deployment countries to their project directory suffix.
var countrySuffixes = map[string]string{
	"Norway":      "",
	"France":      "_FR",
	"Spain":       "_ES",
	"Netherlands": "_NL",
}

// Locator finds the full object key of a recording by walking the project
// directory layout: project/device/config/filename. Recorders move between
// config directories over their lifetime, so every config dir of a device may
// hold the file.
type Locator struct {
	client objectstore.Client
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewLocator builds a locator. Found keys are cached without expiry: raw
// recordings are immutable once uploaded.
func NewLocator(client objectstore.Client) *Locator {
	return &Locator{
		client: client,
		cache:  gocache.New(gocache.NoExpiration, 0),
		logger: logging.ForService("clips"),
	}
}

// FindRecording returns the object key of filename for the given country and
// device. Device directories matching the device id are probed first; the
// walk falls back to every device directory because older deployments used
// inconsistent directory names.
func (l *Locator) FindRecording(ctx context.Context, filename, country, deviceID string) (string, error) {
	cacheKey := country + "/" + filename
	if cached, ok := l.cache.Get(cacheKey); ok {
		return cached.(string), nil
	}

	suffix, ok := countrySuffixes[country]
	if !ok {
		return "", errors.Newf("unknown country %q", country).
			Component("clips").
			Category(errors.CategoryNotFound).
			Build()
	}
	base := projectPrefix + suffix + "/"

	devices, err := l.client.ListPrefixes(ctx, base)
	if err != nil {
		return "", errors.New(err).
			Component("clips").
			Category(errors.CategoryObjectStore).
			Context("prefix", base).
			Build()
	}
	if len(devices) == 0 {
		return "", errors.Newf("no device directories under %s", base).
			Component("clips").
			Category(errors.CategoryNotFound).
			Build()
	}

	// Probe the device's own directory before the rest.
	sort.SliceStable(devices, func(i, j int) bool {
		return strings.Contains(devices[i], deviceID) && !strings.Contains(devices[j], deviceID)
	})

	for _, devicePrefix := range devices {
		configs, err := l.client.ListPrefixes(ctx, devicePrefix)
		if err != nil {
			l.logger.Warn("listing config directories failed, continuing",
				"prefix", devicePrefix, "error", err)
			continue
		}
		for _, configPrefix := range configs {
			key := configPrefix + filename
			exists, err := l.client.Exists(ctx, key)
			if err != nil {
				l.logger.Warn("existence probe failed, continuing", "key", key, "error", err)
				continue
			}
			if exists {
				l.cache.Set(cacheKey, key, gocache.NoExpiration)
				return key, nil
			}
		}
	}

	return "", errors.Newf("recording %s not found in %s", filename, country).
		Component("clips").
		Category(errors.CategoryNotFound).
		Build()
}
