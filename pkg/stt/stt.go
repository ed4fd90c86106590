// Package stt converts captured utterances to text. Every backend returns an
// empty Result without doing any work when given no speech.
package stt

import (
	"context"

	"iris/pkg/pcm"
)

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}

// Transcriber is implemented by every speech-to-text backend.
type Transcriber interface {
	Transcribe(ctx context.Context, u *pcm.Utterance) (Result, error)
}
