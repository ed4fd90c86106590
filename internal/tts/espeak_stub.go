//go:build !espeak

package tts

import (
	"context"
	"errors"

	"iris/internal/audio"
)

// ErrNoEspeak is returned when the binary was built without the espeak tag.
var ErrNoEspeak = errors.New("tts: built without espeak-ng support (rebuild with -tags espeak)")

type Espeak struct{}

func NewEspeak(string, *audio.Guard) (*Espeak, error) { return nil, ErrNoEspeak }

func (*Espeak) Speak(context.Context, string) error { return ErrNoEspeak }
