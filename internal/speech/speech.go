// Package speech wraps the Baidu short-speech REST APIs behind small
// transcription and synthesis interfaces.
package speech

import "context"

// Transcriber converts recorded audio to text.
type Transcriber interface {
	// Transcribe recognizes speech in raw audio bytes. format is the
	// container name ("wav", "pcm"), sampleRate the sample rate in Hz.
	Transcribe(ctx context.Context, audio []byte, format string, sampleRate int) (string, error)
}

// Synthesizer converts text to encoded audio.
type Synthesizer interface {
	// Synthesize returns MP3-encoded speech for the given text.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
