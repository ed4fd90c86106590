// Package wake blocks until the assistant is addressed, either by a spoken
// keyword or by an explicit trigger.
package wake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"iris/internal/audio"
	"iris/pkg/pcm"
)

// Listener blocks until a wake event and returns the index of the keyword
// that fired.
type Listener interface {
	Listen(ctx context.Context) (int, error)
}

// Engine scores fixed-length frames for keywords.
type Engine interface {
	FrameLength() int
	SampleRate() int
	// Process returns the index of a detected keyword, or -1.
	Process(ctx context.Context, frame pcm.Frame) (int, error)
	Close() error
}

// resetter is implemented by engines that carry audio between frames. They
// are reset before each Listen.
type resetter interface {
	Reset()
}

// Detector is the acoustic WakeWordDetector: it streams microphone frames
// through an Engine. The microphone is held only while Listen runs.
type Detector struct {
	src      audio.Source
	engine   Engine
	keywords []string
}

var _ Listener = (*Detector)(nil)

// NewDetector pairs a source with an engine. keywords are used for logging
// only and may be nil.
func NewDetector(src audio.Source, engine Engine, keywords []string) (*Detector, error) {
	if src.SampleRate() != engine.SampleRate() {
		return nil, fmt.Errorf("wake: engine wants %d Hz, source delivers %d Hz", engine.SampleRate(), src.SampleRate())
	}
	return &Detector{src: src, engine: engine, keywords: keywords}, nil
}

func (d *Detector) Listen(ctx context.Context) (int, error) {
	if r, ok := d.engine.(resetter); ok {
		r.Reset()
	}
	keyword := -1
	err := audio.WithCapture(d.src, "wake", d.engine.FrameLength(), func(c audio.Capture) error {
		slog.Info("Listening wake word ...")
		for {
			f, err := c.Read(ctx)
			if err != nil {
				return err
			}
			idx, err := d.engine.Process(ctx, f)
			if err != nil {
				return fmt.Errorf("wake: process: %w", err)
			}
			if idx >= 0 {
				keyword = idx
				return nil
			}
		}
	})
	if err != nil {
		return -1, err
	}
	slog.Info("Detected keyword", "index", keyword, "keyword", d.keywordName(keyword), "at", time.Now().Format(time.TimeOnly))
	return keyword, nil
}

func (d *Detector) keywordName(idx int) string {
	if idx >= 0 && idx < len(d.keywords) {
		return d.keywords[idx]
	}
	return ""
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}

// Manual fires when Fire is called, e.g. from the control socket.
type Manual struct {
	index int
	ch    chan struct{}
}

var _ Listener = (*Manual)(nil)

// NewManual returns a trigger that reports index when fired.
func NewManual(index int) *Manual {
	return &Manual{index: index, ch: make(chan struct{}, 1)}
}

// Fire requests a wake. It reports false when a trigger is already pending.
func (m *Manual) Fire() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Manual) Listen(ctx context.Context) (int, error) {
	select {
	case <-m.ch:
		slog.Info("Manual trigger")
		return m.index, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// First listens on every listener at once and returns the earliest result.
// The remaining listeners are cancelled and awaited before it returns, so any
// device they held is free for the next stage.
func First(listeners ...Listener) Listener {
	if len(listeners) == 1 {
		return listeners[0]
	}
	return &first{listeners: listeners}
}

type first struct {
	listeners []Listener
}

type result struct {
	idx int
	err error
}

func (f *first) Listen(ctx context.Context) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(f.listeners))
	var wg sync.WaitGroup
	for _, l := range f.listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := l.Listen(ctx)
			results <- result{idx: idx, err: err}
		}()
	}

	r := <-results
	cancel()
	wg.Wait()
	return r.idx, r.err
}
