package validation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NINAnor/tabmon-species-api/internal/objectstore"
)

func testNormalRecord(filename string, start float64) *NormalRecord {
	return &NormalRecord{
		Filename:       filename,
		Country:        "Norway",
		Site:           "Birkebeineren",
		DeviceID:       "RPiID-10000000abcdef01",
		Species:        "Turdus merula",
		StartTime:      start,
		Confidence:     0.87,
		Response:       "Yes",
		UserConfidence: "High",
		Timestamp:      time.Date(2026, 5, 4, 6, 30, 0, 0, time.UTC),
	}
}

func TestAppendCreatesSessionFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := objectstore.NewMemClient()
	store := NewStore(client, time.Minute)

	require.NoError(t, store.Append(ctx, "validations", "ab12cd34", testNormalRecord("rec.wav", 42)))

	body, err := client.Download(ctx, "validations/session_ab12cd34.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "validation_response")
	assert.Contains(t, lines[1], "Turdus merula")
	assert.Contains(t, lines[1], "rec.wav")
}

func TestAppendMergesWithExistingRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := objectstore.NewMemClient()
	store := NewStore(client, time.Minute)

	require.NoError(t, store.Append(ctx, "validations", "ab12cd34", testNormalRecord("rec.wav", 42)))
	require.NoError(t, store.Append(ctx, "validations", "ab12cd34", testNormalRecord("rec.wav", 45)))

	body, err := client.Download(ctx, "validations/session_ab12cd34.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, 3) // header + 2 records
}

func TestValidatedClipsFiltersAndMerges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := objectstore.NewMemClient()
	store := NewStore(client, time.Minute)

	// Two independent sessions, plus one record for another species that the
	// filter must exclude.
	require.NoError(t, store.Append(ctx, "validations", "sessionA", testNormalRecord("rec.wav", 42)))
	require.NoError(t, store.Append(ctx, "validations", "sessionB", testNormalRecord("rec.wav", 45)))
	other := testNormalRecord("rec.wav", 48)
	other.Species = "Parus major"
	require.NoError(t, store.Append(ctx, "validations", "sessionB", other))

	filter := Filter{Country: "Norway", DeviceID: "RPiID-10000000abcdef01", Species: "Turdus merula"}
	validated := store.ValidatedClips(ctx, "validations", filter)

	assert.Len(t, validated, 2)
	assert.True(t, validated.Contains(ClipKey{Filename: "rec.wav", StartTime: 42}))
	assert.True(t, validated.Contains(ClipKey{Filename: "rec.wav", StartTime: 45}))
	assert.False(t, validated.Contains(ClipKey{Filename: "rec.wav", StartTime: 48}))
}

func TestValidatedClipsSkipsCorruptFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := objectstore.NewMemClient()
	store := NewStore(client, time.Minute)

	require.NoError(t, client.Upload(ctx, "validations/session_bad.csv", []byte("\"unterminated\n")))
	require.NoError(t, client.Upload(ctx, "validations/notes.txt", []byte("not a csv")))
	require.NoError(t, store.Append(ctx, "validations", "good", testNormalRecord("rec.wav", 42)))

	validated := store.ValidatedClips(ctx, "validations", Filter{})
	assert.Len(t, validated, 1)
}

func TestValidatedClipsEmptyPrefix(t *testing.T) {
	t.Parallel()
	store := NewStore(objectstore.NewMemClient(), time.Minute)
	validated := store.ValidatedClips(context.Background(), "validations", Filter{})
	assert.Empty(t, validated)
}

func TestAppendInvalidatesCachedSets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := objectstore.NewMemClient()
	store := NewStore(client, time.Hour)

	first := store.ValidatedClips(ctx, "validations", Filter{})
	assert.Empty(t, first)

	require.NoError(t, store.Append(ctx, "validations", "s1", testNormalRecord("rec.wav", 42)))

	second := store.ValidatedClips(ctx, "validations", Filter{})
	assert.Len(t, second, 1)
}

func TestExpertRecordRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := objectstore.NewMemClient()
	store := NewStore(client, time.Minute)

	rec := &ExpertRecord{
		Filename:          "rec.wav",
		UserID:            "user001",
		DeploymentID:      "dep-7",
		DetectedSpecies:   []string{"Turdus merula", "Parus major"},
		Confidences:       []float64{0.91, 0.42},
		Uncertainties:     []float64{0.1, 0.3},
		StartTime:         33,
		IdentifiedSpecies: []string{"Turdus merula"},
		UserConfidence:    "Moderate",
		Notes:             "wind noise",
		Timestamp:         time.Date(2026, 5, 4, 6, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.Append(ctx, "validations_expert", "s9", rec))

	body, err := client.Download(ctx, "validations_expert/session_s9.csv")
	require.NoError(t, err)
	content := string(body)
	assert.Contains(t, content, "Turdus merula|Parus major")
	assert.Contains(t, content, "0.91|0.42")

	validated := store.ValidatedClips(ctx, "validations_expert", Filter{UserID: "user001"})
	assert.True(t, validated.Contains(ClipKey{Filename: "rec.wav", StartTime: 33}))

	// Another user's filter must not see it.
	validatedOther := store.ValidatedClips(ctx, "validations_expert", Filter{UserID: "user002"})
	assert.Empty(t, validatedOther)
}

func TestClipSetUnion(t *testing.T) {
	t.Parallel()
	a := ClipSet{ClipKey{"x.wav", 1}: {}}
	b := ClipSet{ClipKey{"x.wav", 1}: {}, ClipKey{"y.wav", 2}: {}}
	u := a.Union(b)
	assert.Len(t, u, 2)
	// Union does not mutate its receivers.
	assert.Len(t, a, 1)
}
