// Package segment turns the live microphone stream into one bounded
// utterance: it waits for speech onset, keeps a pre-roll of audio from before
// the onset, and ends capture after a sustained run of trailing silence.
//
// Timing is counted in chunks, not wall-clock time, so a window of d always
// spans ceil(d/chunk) chunks. With the default 20ms chunk every window is exact.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"iris/internal/audio"
	"iris/pkg/pcm"
)

// Config tunes the segmenter.
type Config struct {
	SampleRate int

	// Chunk is the classification granularity: 10, 20 or 30 ms.
	Chunk time.Duration

	// PreRoll is how much audio before the speech onset is kept.
	PreRoll time.Duration

	// MaxWait bounds the pre-speech phase. When no speech starts within it,
	// Listen reports no speech.
	MaxWait time.Duration

	// TrailingSilence is the run of silent chunks that ends an utterance.
	TrailingSilence time.Duration

	// MinUtterance is the shortest voiced span (first to last speech chunk)
	// accepted as an utterance.
	MinUtterance time.Duration

	// MaxUtterance caps capture after onset. Zero disables the cap.
	MaxUtterance time.Duration

	// Calibration is how much ambient audio Calibrate samples.
	Calibration time.Duration
}

// DefaultConfig returns the stock segmentation parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		Chunk:           20 * time.Millisecond,
		PreRoll:         time.Second,
		MaxWait:         5 * time.Second,
		TrailingSilence: time.Second,
		MinUtterance:    250 * time.Millisecond,
		MaxUtterance:    10 * time.Second,
		Calibration:     time.Second,
	}
}

// Validate checks that cfg is usable.
func (c Config) Validate() error {
	var errs []error
	switch c.Chunk {
	case 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond:
	default:
		errs = append(errs, fmt.Errorf("chunk %v must be 10ms, 20ms or 30ms", c.Chunk))
	}
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		errs = append(errs, fmt.Errorf("sample rate %d must be 8000, 16000, 32000 or 48000", c.SampleRate))
	}
	if c.PreRoll < 0 {
		errs = append(errs, errors.New("pre-roll must not be negative"))
	}
	if c.MaxWait <= 0 {
		errs = append(errs, errors.New("max wait must be positive"))
	}
	if c.TrailingSilence <= 0 {
		errs = append(errs, errors.New("trailing silence must be positive"))
	}
	if c.MinUtterance < 0 {
		errs = append(errs, errors.New("min utterance must not be negative"))
	}
	if c.MaxUtterance != 0 && c.MaxUtterance <= c.TrailingSilence {
		errs = append(errs, fmt.Errorf("max utterance %v must exceed trailing silence %v", c.MaxUtterance, c.TrailingSilence))
	}
	return errors.Join(errs...)
}

// chunks returns how many chunks cover d, rounding up.
func (c Config) chunks(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + c.Chunk - 1) / c.Chunk)
}

// Segmenter is the VoiceSegmenter. It owns the microphone only for the
// duration of a Listen or Calibrate call.
type Segmenter struct {
	src audio.Source
	cls Classifier
	cfg Config

	frameLength     int
	preRollChunks   int
	maxWaitChunks   int
	trailingChunks  int
	maxSpeechChunks int
}

func New(src audio.Source, cls Classifier, cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if src.SampleRate() != cfg.SampleRate {
		return nil, fmt.Errorf("segment: source rate %d differs from configured %d", src.SampleRate(), cfg.SampleRate)
	}
	return &Segmenter{
		src:             src,
		cls:             cls,
		cfg:             cfg,
		frameLength:     pcm.FrameLengthFor(cfg.SampleRate, cfg.Chunk),
		preRollChunks:   cfg.chunks(cfg.PreRoll),
		maxWaitChunks:   cfg.chunks(cfg.MaxWait),
		trailingChunks:  cfg.chunks(cfg.TrailingSilence),
		maxSpeechChunks: cfg.chunks(cfg.MaxUtterance),
	}, nil
}

// Calibrate samples ambient noise and lets the classifier adapt to it. It is
// a no-op for classifiers that do not implement Calibrator.
func (s *Segmenter) Calibrate(ctx context.Context) error {
	cal, ok := s.cls.(Calibrator)
	if !ok || s.cfg.Calibration <= 0 {
		return nil
	}
	n := s.cfg.chunks(s.cfg.Calibration)

	slog.Info("Adjusting for noise...")
	noise := make([]pcm.Frame, 0, n)
	err := audio.WithCapture(s.src, "calibration", s.frameLength, func(c audio.Capture) error {
		for len(noise) < n {
			f, err := c.Read(ctx)
			if err != nil {
				return err
			}
			noise = append(noise, f)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cal.Calibrate(noise)
	if e, ok := s.cls.(interface{ Threshold() float64 }); ok {
		slog.Info("Done", "threshold", e.Threshold())
	}
	return nil
}

// Listen captures one utterance. It returns (nil, nil) when no speech starts
// within MaxWait or when the voiced span is shorter than MinUtterance.
func (s *Segmenter) Listen(ctx context.Context) (*pcm.Utterance, error) {
	var u *pcm.Utterance
	err := audio.WithCapture(s.src, "segmenter", s.frameLength, func(c audio.Capture) error {
		var err error
		u, err = s.capture(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Segmenter) capture(ctx context.Context, c audio.Capture) (*pcm.Utterance, error) {
	slog.Info("Listening...")

	// Pre-speech: keep the most recent chunks until onset or timeout.
	preRoll := newRing[pcm.Frame](s.preRollChunks)
	var onset pcm.Frame
	waited := 0
	for {
		f, err := c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if s.cls.IsSpeech(f) {
			onset = f
			break
		}
		preRoll.Push(f)
		waited++
		if waited >= s.maxWaitChunks {
			slog.Info("No speech detected", "waited", time.Duration(waited)*s.cfg.Chunk)
			return nil, nil
		}
	}

	frames := append(preRoll.Items(), onset)
	speechStart := len(frames) - 1
	lastSpeech := speechStart

	// Speech: append every chunk until the trailing window is all silence.
	silentRun := 0
	truncated := false
	for silentRun < s.trailingChunks {
		if s.maxSpeechChunks > 0 && len(frames)-speechStart >= s.maxSpeechChunks {
			truncated = true
			break
		}
		f, err := c.Read(ctx)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		if s.cls.IsSpeech(f) {
			lastSpeech = len(frames) - 1
			silentRun = 0
		} else {
			silentRun++
		}
	}

	voiced := time.Duration(lastSpeech-speechStart+1) * s.cfg.Chunk
	if voiced < s.cfg.MinUtterance {
		slog.Info("Discarded short burst", "voiced", voiced)
		return nil, nil
	}

	u := &pcm.Utterance{
		Frames:      frames,
		SampleRate:  s.cfg.SampleRate,
		SpeechStart: speechStart,
		Voiced:      voiced,
		Truncated:   truncated,
	}
	slog.Info("Finished listening", "duration", u.Duration(), "voiced", voiced, "truncated", truncated)
	return u, nil
}
