package clips

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gocache "github.com/patrickmn/go-cache"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
	"github.com/NINAnor/tabmon-species-api/internal/objectstore"
)

const clipBitDepth = 16

// Extractor downloads raw recordings and cuts the review window around a
// detection. Extracted clips are cached because a reviewer typically replays
// the same clip several times before submitting.
type Extractor struct {
	client   objectstore.Client
	locator  *Locator
	settings conf.ClipSettings
	cache    *gocache.Cache
	logger   *slog.Logger
}

// NewExtractor builds an extractor with the given clip window settings and
// cache TTL.
func NewExtractor(client objectstore.Client, locator *Locator, settings conf.ClipSettings, ttl conf.CacheSettings) *Extractor {
	return &Extractor{
		client:   client,
		locator:  locator,
		settings: settings,
		cache:    gocache.New(ttl.ClipTTL, 2*ttl.ClipTTL),
		logger:   logging.ForService("clips"),
	}
}

// Clip returns the WAV-encoded review window for a detection: from
// LeadSeconds before startTime to TailSeconds after it, clamped to the
// recording bounds. Multi-channel recordings are downmixed to mono.
func (e *Extractor) Clip(ctx context.Context, filename, country, deviceID string, startTime float64) ([]byte, error) {
	cacheKey := fmt.Sprintf("clip:%s|%s|%.3f", country, filename, startTime)
	if cached, ok := e.cache.Get(cacheKey); ok {
		return cached.([]byte), nil
	}

	key, err := e.locator.FindRecording(ctx, filename, country, deviceID)
	if err != nil {
		return nil, err
	}
	raw, err := e.client.Download(ctx, key)
	if err != nil {
		return nil, errors.New(err).
			Component("clips").
			Category(errors.CategoryObjectStore).
			Context("key", key).
			Build()
	}

	clip, err := extractWindow(raw, startTime, e.settings)
	if err != nil {
		return nil, err
	}

	e.cache.Set(cacheKey, clip, gocache.DefaultExpiration)
	e.logger.Debug("clip extracted",
		"key", key, "start_time", startTime, "bytes", len(clip))
	return clip, nil
}

// extractWindow decodes a WAV recording and re-encodes the window around
// startTime as 16-bit mono WAV at the recording's native sample rate.
func extractWindow(raw []byte, startTime float64, settings conf.ClipSettings) ([]byte, error) {
	decoder := wav.NewDecoder(bytes.NewReader(raw))
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.New(err).
			Component("clips").
			Category(errors.CategoryAudio).
			Build()
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, errors.Newf("recording has no PCM format").
			Component("clips").
			Category(errors.CategoryAudio).
			Build()
	}

	mono := downmix(buf)
	rate := buf.Format.SampleRate

	from := int((startTime - settings.LeadSeconds) * float64(rate))
	to := int((startTime + settings.TailSeconds) * float64(rate))
	if from < 0 {
		from = 0
	}
	if to > len(mono) {
		to = len(mono)
	}
	if from >= to {
		return nil, errors.Newf("detection window at %.2fs is outside the recording", startTime).
			Component("clips").
			Category(errors.CategoryAudio).
			Build()
	}

	window := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           mono[from:to],
		SourceBitDepth: clipBitDepth,
	}
	return encodeWAV(window)
}

// downmix averages all channels into one. Recorders in the field are mono,
// but a few early units shipped stereo firmware.
func downmix(buf *audio.IntBuffer) []int {
	channels := buf.Format.NumChannels
	if channels <= 1 {
		return buf.Data
	}
	frames := len(buf.Data) / channels
	mono := make([]int, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		mono[i] = sum / channels
	}
	return mono
}

// encodeWAV writes a PCM buffer to an in-memory WAV file.
func encodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	out := &writeSeekBuffer{}
	encoder := wav.NewEncoder(out,
		buf.Format.SampleRate, clipBitDepth, buf.Format.NumChannels, 1)
	if err := encoder.Write(buf); err != nil {
		return nil, errors.New(err).
			Component("clips").
			Category(errors.CategoryAudio).
			Build()
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.New(err).
			Component("clips").
			Category(errors.CategoryAudio).
			Build()
	}
	return out.data, nil
}

// writeSeekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back
// to patch chunk sizes in the header.
type writeSeekBuffer struct {
	data []byte
	pos  int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	b.pos = int(pos)
	return pos, nil
}
