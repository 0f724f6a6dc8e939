package validation

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
	"github.com/NINAnor/tabmon-species-api/internal/objectstore"
)

// Filter restricts which validation rows count towards the validated set.
// Empty fields match everything. Normal mode filters on country/device/species;
// pro and expert modes filter on the user id.
type Filter struct {
	Country  string
	DeviceID string
	Species  string
	UserID   string
}

func (f Filter) cacheKey() string {
	return strings.Join([]string{f.Country, f.DeviceID, f.Species, f.UserID}, "|")
}

func (f Filter) matches(row map[string]string) bool {
	if f.Country != "" && row["country"] != f.Country {
		return false
	}
	if f.DeviceID != "" && row["device_id"] != f.DeviceID {
		return false
	}
	if f.Species != "" && row["species"] != f.Species {
		return false
	}
	if f.UserID != "" && row["userID"] != f.UserID {
		return false
	}
	return true
}

// Store reads and writes validation session files. Reads are cached with a
// TTL because reconstructing the validated set means downloading every session
// file under the prefix.
type Store struct {
	client objectstore.Client
	cache  *gocache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore builds a validation store on top of an object storage client.
func NewStore(client objectstore.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		cache:  gocache.New(ttl, 10*time.Minute),
		ttl:    ttl,
		logger: logging.ForService("validation"),
	}
}

// SessionKey returns the object key of a session's validation file.
func SessionKey(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session_%s.csv", prefix, sessionID)
}

// ValidatedClips lists every CSV under prefix, concatenates their rows,
// applies the filter and returns the set of validated clip positions. Corrupt
// or unreadable files are skipped with a warning; a listing failure degrades
// to an empty set because validation must stay usable when the log store has
// hiccups.
func (s *Store) ValidatedClips(ctx context.Context, prefix string, filter Filter) ClipSet {
	cacheKey := prefix + "::" + filter.cacheKey()
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(ClipSet)
	}

	validated := make(ClipSet)
	keys, err := s.client.List(ctx, prefix+"/")
	if err != nil {
		s.logger.Warn("listing validation files failed, treating as empty",
			"prefix", prefix, "error", err)
		return validated
	}

	for _, key := range keys {
		if !strings.HasSuffix(key, ".csv") {
			continue
		}
		body, err := s.client.Download(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unreadable validation file", "key", key, "error", err)
			continue
		}
		rows, err := parseCSV(body)
		if err != nil {
			s.logger.Warn("skipping invalid validation file", "key", key, "error", err)
			continue
		}
		for _, row := range rows {
			if !filter.matches(row) {
				continue
			}
			key, ok := clipKeyFromRow(row)
			if !ok {
				continue
			}
			validated[key] = struct{}{}
		}
	}

	s.cache.Set(cacheKey, validated, s.ttl)
	return validated
}

// Append adds a record to the session's validation file: download the current
// content if the file exists, append one row, upload the whole file again.
// Two sessions never share a file, but a session writing from two tabs can
// still lose one row to the other; that is accepted.
func (s *Store) Append(ctx context.Context, prefix, sessionID string, rec Record) error {
	key := SessionKey(prefix, sessionID)

	var rows [][]string
	exists, err := s.client.Exists(ctx, key)
	if err != nil {
		s.logger.Warn("existence probe failed, assuming new session file", "key", key, "error", err)
		exists = false
	}
	if exists {
		body, err := s.client.Download(ctx, key)
		if err != nil {
			return errors.New(err).
				Component("validation").
				Category(errors.CategoryObjectStore).
				Context("key", key).
				Build()
		}
		reader := csv.NewReader(bytes.NewReader(body))
		reader.FieldsPerRecord = -1
		rows, err = reader.ReadAll()
		if err != nil {
			// A session file we cannot parse would otherwise wedge the
			// session forever. Start over; earlier rows of this session are
			// already reflected in the reviewer's session state.
			s.logger.Warn("existing session file unreadable, rewriting", "key", key, "error", err)
			rows = nil
		}
	}

	if len(rows) == 0 {
		rows = [][]string{rec.header()}
	}
	rows = append(rows, rec.row())

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return errors.New(err).
			Component("validation").
			Category(errors.CategoryFileParsing).
			Context("key", key).
			Build()
	}

	if err := s.client.Upload(ctx, key, buf.Bytes()); err != nil {
		return errors.New(err).
			Component("validation").
			Category(errors.CategoryObjectStore).
			Context("key", key).
			Build()
	}

	s.invalidate(prefix)
	return nil
}

// invalidate drops all cached validated sets under a prefix so the next read
// sees the new record once the TTL-bypassing session set no longer covers it.
func (s *Store) invalidate(prefix string) {
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix+"::") {
			s.cache.Delete(key)
		}
	}
}

// parseCSV reads a headered CSV into one map per row. Rows shorter than the
// header keep their available columns; extra columns are dropped.
func parseCSV(body []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func clipKeyFromRow(row map[string]string) (ClipKey, bool) {
	filename, ok := row["filename"]
	if !ok || filename == "" {
		return ClipKey{}, false
	}
	start, err := strconv.ParseFloat(row["start_time"], 64)
	if err != nil {
		return ClipKey{}, false
	}
	return ClipKey{Filename: filename, StartTime: start}, true
}
