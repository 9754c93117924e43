package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ytdigest/internal/ports"
)

const (
	defaultFFmpegPath = "ffmpeg"
	defaultTimeout    = 5 * time.Minute
)

// Extractor pulls a mono 16 kHz WAV track out of a media file, the shape
// speech-to-text services expect.
type Extractor struct {
	path    string
	timeout time.Duration
}

var _ ports.AudioExtractor = (*Extractor)(nil)

// NewExtractor uses the ffmpeg binary on PATH unless told otherwise.
func NewExtractor() *Extractor {
	return &Extractor{path: defaultFFmpegPath, timeout: defaultTimeout}
}

// ExtractAudio writes the audio track next to the media file and returns its
// path. An existing extraction is reused.
func (e *Extractor) ExtractAudio(ctx context.Context, mediaPath string) (string, error) {
	if _, err := os.Stat(mediaPath); err != nil {
		return "", fmt.Errorf("media file: %w", err)
	}

	audioPath := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".wav"
	if info, err := os.Stat(audioPath); err == nil && info.Size() > 0 {
		return audioPath, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", mediaPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		audioPath,
	}

	cmd := exec.CommandContext(runCtx, e.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(audioPath)
		if runCtx.Err() != nil {
			return "", runCtx.Err()
		}
		return "", fmt.Errorf("ffmpeg: %s: %w", lastLine(stderr.String()), err)
	}
	return audioPath, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
