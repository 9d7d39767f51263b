// Package speech wraps external speech-to-text and text-to-speech
// capabilities. Both are treated as opaque: audio in, text out and the
// reverse.
package speech

import (
	"context"
	"errors"
)

// Sentinel errors for the two failure modes. Transcription failures
// abort the whole utterance; synthesis failures degrade the response to
// text-only.
var (
	ErrTranscription = errors.New("transcription failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
)

// Transcriber converts an audio recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer renders text into spoken audio (MP3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
