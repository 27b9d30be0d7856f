// Package media handles audio files around a turn: normalizing uploaded
// recordings for speech recognition and storing generated replies for the
// static file endpoint.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter normalizes an uploaded recording into a waveform the speech
// recognizer accepts.
type Converter interface {
	// Normalize converts inputPath and returns the path of the converted
	// file. The caller owns both files.
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// FFmpeg shells out to the ffmpeg binary to convert browser recordings
// (typically WebM/Opus) to 16 kHz mono 16-bit PCM WAV.
type FFmpeg struct {
	// Binary is the ffmpeg executable name or path. Defaults to "ffmpeg".
	Binary string
	// SampleRate of the output waveform. Defaults to 16000.
	SampleRate int
}

// Normalize implements Converter.
func (f *FFmpeg) Normalize(ctx context.Context, inputPath, outputPath string) error {
	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	cmd := exec.CommandContext(ctx, binary,
		"-y",
		"-i", inputPath,
		"-f", "wav",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", rate),
		"-ac", "1",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ffmpeg conversion failed: %w: %s", err, lastLines(detail, 3))
		}
		return fmt.Errorf("ffmpeg conversion failed: %w", err)
	}
	return nil
}

// lastLines keeps the tail of ffmpeg's stderr, where the actual failure
// reason lands.
func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
