package clips

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
)

const (
	spectrogramWidth  = 1000
	spectrogramHeight = 400
	renderTimeout     = 30 * time.Second
)

// SpectrogramGenerator renders clip spectrograms by shelling out to sox, or
// to ffmpeg when sox is not installed. Rendered images share the clip cache
// TTL.
type SpectrogramGenerator struct {
	soxPath    string
	ffmpegPath string
	cache      *gocache.Cache
	logger     *slog.Logger
}

// NewSpectrogramGenerator probes PATH for the render binaries. The generator
// still constructs when neither is present; Render then fails per call, so a
// deployment without sox keeps audio review working.
func NewSpectrogramGenerator(ttl time.Duration) *SpectrogramGenerator {
	g := &SpectrogramGenerator{
		cache:  gocache.New(ttl, 2*ttl),
		logger: logging.ForService("spectrogram"),
	}
	if path, err := exec.LookPath("sox"); err == nil {
		g.soxPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		g.ffmpegPath = path
	}
	if g.soxPath == "" && g.ffmpegPath == "" {
		g.logger.Warn("neither sox nor ffmpeg found, spectrograms disabled")
	}
	return g
}

// Render returns the spectrogram PNG for a WAV clip. cacheKey identifies the
// clip across calls; wavClip is the encoded audio.
func (g *SpectrogramGenerator) Render(ctx context.Context, cacheKey string, wavClip []byte) ([]byte, error) {
	if cached, ok := g.cache.Get(cacheKey); ok {
		return cached.([]byte), nil
	}

	dir, err := os.MkdirTemp("", "tabmon-spectrogram-")
	if err != nil {
		return nil, errors.New(err).
			Component("spectrogram").
			Category(errors.CategorySpectrogram).
			Build()
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "clip.wav")
	pngPath := filepath.Join(dir, "clip.png")
	if err := os.WriteFile(wavPath, wavClip, 0o600); err != nil {
		return nil, errors.New(err).
			Component("spectrogram").
			Category(errors.CategorySpectrogram).
			Build()
	}

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	switch {
	case g.soxPath != "":
		err = g.run(ctx, g.soxPath, soxSpectrogramArgs(wavPath, pngPath, spectrogramWidth, spectrogramHeight))
	case g.ffmpegPath != "":
		err = g.run(ctx, g.ffmpegPath, ffmpegSpectrogramArgs(wavPath, pngPath, spectrogramWidth, spectrogramHeight))
	default:
		err = errors.Newf("no spectrogram renderer available").
			Component("spectrogram").
			Category(errors.CategorySpectrogram).
			Build()
	}
	if err != nil {
		return nil, err
	}

	png, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, errors.New(err).
			Component("spectrogram").
			Category(errors.CategorySpectrogram).
			Build()
	}
	g.cache.Set(cacheKey, png, gocache.DefaultExpiration)
	return png, nil
}

// run executes a render command under nice so bulk spectrogram requests do
// not starve audio serving.
func (g *SpectrogramGenerator) run(ctx context.Context, binary string, args []string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, binary, args...)
	} else {
		cmd = exec.CommandContext(ctx, "nice", append([]string{"-n", "19", binary}, args...)...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.New(err).
			Component("spectrogram").
			Category(errors.CategorySpectrogram).
			Context("binary", binary).
			Context("output", stderr.String()).
			Build()
	}
	return nil
}

// soxSpectrogramArgs builds the sox invocation. Audio is resampled to 24 kHz
// so the frequency axis tops out at 12 kHz, where bird vocalizations live.
func soxSpectrogramArgs(wavPath, pngPath string, width, height int) []string {
	return []string{
		wavPath, "-n",
		"rate", "24k",
		"spectrogram",
		"-x", fmt.Sprintf("%d", width),
		"-y", fmt.Sprintf("%d", height),
		"-o", pngPath,
	}
}

// ffmpegSpectrogramArgs builds the fallback ffmpeg invocation.
func ffmpegSpectrogramArgs(wavPath, pngPath string, width, height int) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-i", wavPath,
		"-lavfi", fmt.Sprintf("showspectrumpic=s=%dx%d:legend=0", width, height),
		"-frames:v", "1",
		pngPath,
	}
}
