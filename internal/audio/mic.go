package audio

import (
	"context"
	"fmt"
	"log/slog"

	"iris/internal/fault"
	"iris/pkg/pcm"
)

// InputStream is an opened, running capture stream.
type InputStream interface {
	// Read blocks until buf is filled with one frame.
	Read(buf []int16) error
	Close() error
}

// Driver opens capture streams on some audio backend.
type Driver interface {
	OpenInput(sampleRate, frameLength int) (InputStream, error)
}

// Capture is an exclusive handle on the microphone yielding fixed-size frames.
type Capture interface {
	Format() pcm.Format
	Read(ctx context.Context) (pcm.Frame, error)
	Close() error
}

// Source hands out captures of the input device.
type Source interface {
	SampleRate() int
	Open(owner string, frameLength int) (Capture, error)
}

// Microphone is the AudioFrameSource: it serialises access to a capture
// driver behind a Guard.
type Microphone struct {
	driver     Driver
	guard      *Guard
	sampleRate int
}

var _ Source = (*Microphone)(nil)

func NewMicrophone(driver Driver, sampleRate int) *Microphone {
	return &Microphone{
		driver:     driver,
		guard:      NewGuard("microphone"),
		sampleRate: sampleRate,
	}
}

func (m *Microphone) SampleRate() int { return m.sampleRate }

// Guard exposes the device guard so callers can inspect ownership.
func (m *Microphone) Guard() *Guard { return m.guard }

// Open acquires the microphone for owner and starts a stream delivering
// frameLength samples per Read. The device is released by Close.
func (m *Microphone) Open(owner string, frameLength int) (Capture, error) {
	if frameLength <= 0 {
		return nil, fmt.Errorf("audio: invalid frame length %d", frameLength)
	}
	release, err := m.guard.Acquire(owner)
	if err != nil {
		return nil, fault.New(fault.DeviceUnavailable, "mic.open", err)
	}

	stream, err := m.driver.OpenInput(m.sampleRate, frameLength)
	if err != nil {
		release()
		return nil, fault.New(fault.DeviceUnavailable, "mic.open", err)
	}
	slog.Debug("microphone opened", "owner", owner, "frame_length", frameLength)

	return &capture{
		stream:  stream,
		release: release,
		owner:   owner,
		format:  pcm.Format{SampleRate: m.sampleRate, FrameLength: frameLength},
		buf:     make([]int16, frameLength),
	}, nil
}

type capture struct {
	stream  InputStream
	release func()
	owner   string
	format  pcm.Format
	buf     []int16
	closed  bool
}

func (c *capture) Format() pcm.Format { return c.format }

func (c *capture) Read(ctx context.Context) (pcm.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed {
		return nil, fmt.Errorf("audio: read on closed capture")
	}
	if err := c.stream.Read(c.buf); err != nil {
		return nil, fault.New(fault.DeviceUnavailable, "mic.read", err)
	}
	frame := make(pcm.Frame, len(c.buf))
	copy(frame, c.buf)
	return frame, nil
}

func (c *capture) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer c.release()
	slog.Debug("microphone released", "owner", c.owner)
	return c.stream.Close()
}

// WithCapture opens the microphone for the duration of fn and releases it on
// every exit path.
func WithCapture(src Source, owner string, frameLength int, fn func(Capture) error) error {
	c, err := src.Open(owner, frameLength)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			slog.Warn("failed to close capture", "owner", owner, "err", cerr)
		}
	}()
	return fn(c)
}
