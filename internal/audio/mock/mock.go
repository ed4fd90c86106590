// Package mock provides a scripted capture driver for tests.
package mock

import (
	"errors"
	"sync"
	"time"

	"iris/internal/audio"
	"iris/pkg/pcm"
)

// Driver is an audio.Driver whose streams replay frames produced by Frame.
// Every field is read at OpenInput time.
type Driver struct {
	// Frame returns the i-th frame of the script. When nil, streams yield
	// silence forever.
	Frame func(i int) pcm.Frame
	// Delay is slept before each frame is delivered.
	Delay time.Duration
	// OpenErr, when set, is returned from OpenInput.
	OpenErr error

	mu     sync.Mutex
	opens  int
	closes int
	reads  int
}

var _ audio.Driver = (*Driver)(nil)

// ErrExhausted is returned by a stream once Frame returns nil.
var ErrExhausted = errors.New("mock: script exhausted")

func (d *Driver) OpenInput(_ int, frameLength int) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opens++
	return &stream{d: d, frameLength: frameLength}, nil
}

// Opens returns how many streams were opened.
func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes returns how many streams were closed.
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Reads returns the total number of frames delivered across all streams.
func (d *Driver) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

type stream struct {
	d           *Driver
	frameLength int
	i           int
}

func (s *stream) Read(buf []int16) error {
	if s.d.Delay > 0 {
		time.Sleep(s.d.Delay)
	}
	var f pcm.Frame
	if s.d.Frame != nil {
		f = s.d.Frame(s.i)
		if f == nil {
			return ErrExhausted
		}
	}
	s.i++
	clear(buf)
	copy(buf, f)

	s.d.mu.Lock()
	s.d.reads++
	s.d.mu.Unlock()
	return nil
}

func (s *stream) Close() error {
	s.d.mu.Lock()
	s.d.closes++
	s.d.mu.Unlock()
	return nil
}

// Tone returns a frame of n samples at constant amplitude.
func Tone(n int, amplitude int16) pcm.Frame {
	f := make(pcm.Frame, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = amplitude
		} else {
			f[i] = -amplitude
		}
	}
	return f
}

// Script builds a Frame func from (count, amplitude) segments. After the
// last segment it returns nil.
func Script(frameLength int, segments ...Segment) func(int) pcm.Frame {
	return func(i int) pcm.Frame {
		for _, s := range segments {
			if i < s.Frames {
				return Tone(frameLength, s.Amplitude)
			}
			i -= s.Frames
		}
		return nil
	}
}

// Segment is a run of identical frames in a Script.
type Segment struct {
	Frames    int
	Amplitude int16
}
