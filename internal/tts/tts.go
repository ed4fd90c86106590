// Package tts speaks assistant replies. Every Synthesizer blocks until
// playback has finished and holds the speaker guard while it plays.
package tts

import (
	"context"
)

// Synthesizer renders text as audible speech.
type Synthesizer interface {
	// Speak blocks until the text has been played or ctx is cancelled. Empty
	// text is a no-op.
	Speak(ctx context.Context, text string) error
}

// Player plays mono float samples. *audio.Speaker satisfies it.
type Player interface {
	Play(ctx context.Context, owner string, samples []float32, sampleRate int) error
}

const owner = "tts"
