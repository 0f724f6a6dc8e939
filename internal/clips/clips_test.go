package clips

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/objectstore"
)

// makeWAV encodes a mono WAV of n samples at the given rate, where sample i
// holds the value i so tests can check which part of the file was cut.
func makeWAV(t *testing.T, n, rate, channels int) []byte {
	t.Helper()
	data := make([]int, n*channels)
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			data[i*channels+c] = i
		}
	}
	raw, err := encodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: clipBitDepth,
	})
	require.NoError(t, err)
	return raw
}

func decodePCM(t *testing.T, raw []byte) []int {
	t.Helper()
	buf, err := wav.NewDecoder(bytes.NewReader(raw)).FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, 1, buf.Format.NumChannels)
	return buf.Data
}

func TestExtractWindowCutsAroundStart(t *testing.T) {
	t.Parallel()
	rate := 100
	raw := makeWAV(t, 10*rate, rate, 1)

	settings := conf.ClipSettings{SampleRate: rate, LeadSeconds: 1, TailSeconds: 2}
	clip, err := extractWindow(raw, 5, settings)
	require.NoError(t, err)

	samples := decodePCM(t, clip)
	// Window runs from 4s to 7s: 300 samples starting at sample 400.
	require.Len(t, samples, 3*rate)
	assert.Equal(t, 400, samples[0])
	assert.Equal(t, 699, samples[len(samples)-1])
}

func TestExtractWindowClampsToFileBounds(t *testing.T) {
	t.Parallel()
	rate := 100
	raw := makeWAV(t, 10*rate, rate, 1)
	settings := conf.ClipSettings{SampleRate: rate, LeadSeconds: 3, TailSeconds: 6}

	// Detection right at the start: no audio before 0s exists.
	clip, err := extractWindow(raw, 1, settings)
	require.NoError(t, err)
	samples := decodePCM(t, clip)
	require.Len(t, samples, 7*rate)
	assert.Equal(t, 0, samples[0])

	// Detection near the end: tail is cut short.
	clip, err = extractWindow(raw, 9, settings)
	require.NoError(t, err)
	samples = decodePCM(t, clip)
	require.Len(t, samples, 4*rate)
	assert.Equal(t, 999, samples[len(samples)-1])
}

func TestExtractWindowOutsideRecording(t *testing.T) {
	t.Parallel()
	rate := 100
	raw := makeWAV(t, rate, rate, 1)
	settings := conf.ClipSettings{SampleRate: rate, LeadSeconds: 3, TailSeconds: 6}

	_, err := extractWindow(raw, 60, settings)
	assert.Error(t, err)
}

func TestExtractWindowDownmixesStereo(t *testing.T) {
	t.Parallel()
	rate := 100
	raw := makeWAV(t, 2*rate, rate, 2)
	settings := conf.ClipSettings{SampleRate: rate, LeadSeconds: 0, TailSeconds: 1}

	clip, err := extractWindow(raw, 0, settings)
	require.NoError(t, err)
	samples := decodePCM(t, clip)
	require.Len(t, samples, rate)
	// Both channels carry the frame index, so the mono mix preserves it.
	assert.Equal(t, 50, samples[50])
}

func TestLocatorWalksProjectLayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := objectstore.NewMemClient()
	require.NoError(t, store.Upload(ctx,
		"proj_tabmon_NINA_FR/bugg_RPiID-0001/conf_202403/rec.wav", []byte("x")))
	require.NoError(t, store.Upload(ctx,
		"proj_tabmon_NINA_FR/bugg_RPiID-0002/conf_202401/other.wav", []byte("x")))

	loc := NewLocator(store)
	key, err := loc.FindRecording(ctx, "rec.wav", "France", "0001")
	require.NoError(t, err)
	assert.Equal(t, "proj_tabmon_NINA_FR/bugg_RPiID-0001/conf_202403/rec.wav", key)

	// Second lookup is served from the cache even if the store empties.
	key2, err := loc.FindRecording(ctx, "rec.wav", "France", "0001")
	require.NoError(t, err)
	assert.Equal(t, key, key2)
}

func TestLocatorSearchesOtherDevices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := objectstore.NewMemClient()
	// The file lives under a device dir that does not match its device id.
	require.NoError(t, store.Upload(ctx,
		"proj_tabmon_NINA/bugg_RPiID-renamed/conf_202405/rec.wav", []byte("x")))

	loc := NewLocator(store)
	key, err := loc.FindRecording(ctx, "rec.wav", "Norway", "0042")
	require.NoError(t, err)
	assert.Equal(t, "proj_tabmon_NINA/bugg_RPiID-renamed/conf_202405/rec.wav", key)
}

func TestLocatorUnknownCountry(t *testing.T) {
	t.Parallel()
	loc := NewLocator(objectstore.NewMemClient())
	_, err := loc.FindRecording(context.Background(), "rec.wav", "Atlantis", "0001")
	assert.Error(t, err)
}

func TestLocatorMissingRecording(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := objectstore.NewMemClient()
	require.NoError(t, store.Upload(ctx,
		"proj_tabmon_NINA/bugg_RPiID-0001/conf_202403/other.wav", []byte("x")))

	loc := NewLocator(store)
	_, err := loc.FindRecording(ctx, "rec.wav", "Norway", "0001")
	assert.Error(t, err)
}

func TestExtractorCachesClips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rate := 100
	store := objectstore.NewMemClient()
	key := "proj_tabmon_NINA/bugg_RPiID-0001/conf_202403/rec.wav"
	require.NoError(t, store.Upload(ctx, key, makeWAV(t, 10*rate, rate, 1)))

	settings := conf.ClipSettings{SampleRate: rate, LeadSeconds: 1, TailSeconds: 1}
	ex := NewExtractor(store, NewLocator(store), settings, conf.CacheSettings{ClipTTL: time.Minute})

	clip, err := ex.Clip(ctx, "rec.wav", "Norway", "0001", 5)
	require.NoError(t, err)
	require.NotEmpty(t, clip)

	// Corrupting the object does not break replays of a cached clip.
	require.NoError(t, store.Upload(ctx, key, []byte("not a wav")))
	clip2, err := ex.Clip(ctx, "rec.wav", "Norway", "0001", 5)
	require.NoError(t, err)
	assert.Equal(t, clip, clip2)
}

func TestSpectrogramArgs(t *testing.T) {
	t.Parallel()

	sox := soxSpectrogramArgs("in.wav", "out.png", 1000, 400)
	assert.Equal(t, []string{
		"in.wav", "-n", "rate", "24k", "spectrogram",
		"-x", "1000", "-y", "400", "-o", "out.png",
	}, sox)

	ffmpeg := ffmpegSpectrogramArgs("in.wav", "out.png", 1000, 400)
	assert.Contains(t, ffmpeg, "showspectrumpic=s=1000x400:legend=0")
	assert.Equal(t, "out.png", ffmpeg[len(ffmpeg)-1])
}
