// Package validation persists human validation records as per-session CSV
// files in object storage and reconstructs the set of already-validated clips
// by concatenating them.
package validation

import (
	"strconv"
	"strings"
	"time"
)

// NoneDetected marks an expert submission where none of the listed species
// could be heard.
const NoneDetected = "NONE_DETECTED"

// arraySep joins array fields inside a CSV cell.
const arraySep = "|"

// timeLayout is the timestamp format written to validation files.
const timeLayout = "2006-01-02 15:04:05.000000"

// ClipKey identifies a clip position: one detection window in one recording.
type ClipKey struct {
	Filename  string
	StartTime float64
}

// ClipSet is a set of validated clip positions.
type ClipSet map[ClipKey]struct{}

// Contains reports whether the set holds the given key.
func (cs ClipSet) Contains(key ClipKey) bool {
	_, ok := cs[key]
	return ok
}

// Union returns a new set holding the keys of both sets.
func (cs ClipSet) Union(other ClipSet) ClipSet {
	merged := make(ClipSet, len(cs)+len(other))
	for k := range cs {
		merged[k] = struct{}{}
	}
	for k := range other {
		merged[k] = struct{}{}
	}
	return merged
}

// NormalRecord is a single-species Yes/No/Unsure validation from the
// anonymous mode.
type NormalRecord struct {
	Filename       string
	Country        string
	Site           string
	DeviceID       string
	Species        string
	StartTime      float64
	Confidence     float64
	Response       string // Yes, No or Unsure
	HeardInstead   string // free text when the answer is No
	UserConfidence string // Low, Moderate or High
	Timestamp      time.Time
}

func (r *NormalRecord) header() []string {
	return []string{
		"filename", "country", "site", "device_id", "species", "start_time",
		"confidence", "validation_response", "user_validation", "user_confidence",
		"timestamp",
	}
}

func (r *NormalRecord) row() []string {
	return []string{
		r.Filename, r.Country, r.Site, r.DeviceID, r.Species,
		formatFloat(r.StartTime), formatFloat(r.Confidence),
		r.Response, r.HeardInstead, r.UserConfidence,
		r.Timestamp.Format(timeLayout),
	}
}

// Key returns the clip position this record validates.
func (r *NormalRecord) Key() ClipKey {
	return ClipKey{Filename: r.Filename, StartTime: r.StartTime}
}

// ExpertRecord is a multi-species checklist validation from the pro/expert
// modes. Array fields are pipe-joined in the CSV.
type ExpertRecord struct {
	Filename          string
	UserID            string
	DeploymentID      string
	DetectedSpecies   []string  // what the model reported for the clip
	Confidences       []float64 // aligned with DetectedSpecies
	Uncertainties     []float64 // aligned with DetectedSpecies
	StartTime         float64
	IdentifiedSpecies []string // what the reviewer confirmed or added
	UserConfidence    string
	Notes             string
	Timestamp         time.Time
}

func (r *ExpertRecord) header() []string {
	return []string{
		"filename", "userID", "deployment_id", "birdnet_species_detected",
		"birdnet_confidences", "birdnet_uncertainties", "start_time",
		"identified_species", "species_count", "user_confidence", "user_notes",
		"timestamp",
	}
}

func (r *ExpertRecord) row() []string {
	return []string{
		r.Filename, r.UserID, r.DeploymentID,
		strings.Join(r.DetectedSpecies, arraySep),
		joinFloats(r.Confidences),
		joinFloats(r.Uncertainties),
		formatFloat(r.StartTime),
		strings.Join(r.IdentifiedSpecies, arraySep),
		strconv.Itoa(len(r.IdentifiedSpecies)),
		r.UserConfidence, r.Notes,
		r.Timestamp.Format(timeLayout),
	}
}

// Key returns the clip position this record validates.
func (r *ExpertRecord) Key() ClipKey {
	return ClipKey{Filename: r.Filename, StartTime: r.StartTime}
}

// Record is anything that can be appended to a session validation file.
type Record interface {
	header() []string
	row() []string
	Key() ClipKey
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = formatFloat(f)
	}
	return strings.Join(parts, arraySep)
}
