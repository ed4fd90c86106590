// Package notify plays the short audible cue that tells the user the wake
// word was heard.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	"github.com/spf13/afero"
)

// Player renders a beep streamer. *audio.Speaker satisfies it.
type Player interface {
	PlayStreamer(ctx context.Context, owner string, st beep.Streamer, rate beep.SampleRate) error
}

const (
	toneRate     = beep.SampleRate(44100)
	toneFreq     = 880.0
	toneDuration = 150 * time.Millisecond
	toneGain     = 0.3
)

// Cue is a wake confirmation sound: an mp3 or wav file, or a short
// synthesized tone when no file is configured.
type Cue struct {
	player Player
	data   []byte
	ext    string
}

// NewCue loads path from fs. An empty path selects the built-in tone.
func NewCue(fs afero.Fs, path string, player Player) (*Cue, error) {
	c := &Cue{player: player}
	if path == "" {
		return c, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("notify: read cue: %w", err)
	}
	c.data = data
	c.ext = strings.ToLower(filepath.Ext(path))
	if _, _, err := c.decode(); err != nil {
		return nil, err
	}
	return c, nil
}

// Play blocks until the cue has played.
func (c *Cue) Play(ctx context.Context) error {
	st, rate, err := c.decode()
	if err != nil {
		return err
	}
	return c.player.PlayStreamer(ctx, "cue", st, rate)
}

func (c *Cue) decode() (beep.Streamer, beep.SampleRate, error) {
	if c.data == nil {
		return tone(toneRate, toneFreq, toneDuration), toneRate, nil
	}

	rc := io.NopCloser(bytes.NewReader(c.data))
	var (
		st     beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch c.ext {
	case ".mp3":
		st, format, err = mp3.Decode(rc)
	case ".wav":
		st, format, err = wav.Decode(rc)
	default:
		return nil, 0, fmt.Errorf("notify: unsupported cue format %q", c.ext)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("notify: decode cue: %w", err)
	}
	return st, format.SampleRate, nil
}

// tone is a sine burst with a linear fade out to avoid a click at the end.
func tone(rate beep.SampleRate, freq float64, d time.Duration) beep.Streamer {
	total := rate.N(d)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < total {
			env := 1 - float64(pos)/float64(total)
			v := toneGain * env * math.Sin(2*math.Pi*freq*float64(pos)/float64(rate))
			samples[n][0], samples[n][1] = v, v
			n++
			pos++
		}
		return n, true
	})
}
