package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// resampleQuality is the beep resampler quality used for playback.
const resampleQuality = 4

// Speaker plays audio on the default output device through beep. Play blocks
// until playback finishes or ctx is cancelled.
type Speaker struct {
	guard *Guard
	rate  beep.SampleRate

	initOnce sync.Once
	initErr  error
}

func NewSpeaker(sampleRate int) *Speaker {
	return &Speaker{
		guard: NewGuard("speaker"),
		rate:  beep.SampleRate(sampleRate),
	}
}

func (s *Speaker) Guard() *Guard { return s.guard }

func (s *Speaker) init() error {
	s.initOnce.Do(func() {
		s.initErr = speaker.Init(s.rate, s.rate.N(time.Second/10))
	})
	return s.initErr
}

// Play renders mono float samples recorded at sampleRate.
func (s *Speaker) Play(ctx context.Context, owner string, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	return s.PlayStreamer(ctx, owner, &floatStreamer{samples: samples}, beep.SampleRate(sampleRate))
}

// PlayStreamer renders st, resampling from its native rate when needed.
func (s *Speaker) PlayStreamer(ctx context.Context, owner string, st beep.Streamer, rate beep.SampleRate) error {
	release, err := s.guard.Acquire(owner)
	if err != nil {
		return err
	}
	defer release()

	if err := s.init(); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	if rate != s.rate {
		st = beep.Resample(resampleQuality, rate, s.rate, st)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(st, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// floatStreamer feeds mono samples to both output channels.
type floatStreamer struct {
	samples []float32
	pos     int
}

func (f *floatStreamer) Stream(out [][2]float64) (int, bool) {
	if f.pos >= len(f.samples) {
		return 0, false
	}
	n := 0
	for n < len(out) && f.pos < len(f.samples) {
		v := float64(f.samples[f.pos])
		out[n][0], out[n][1] = v, v
		n++
		f.pos++
	}
	return n, true
}

func (f *floatStreamer) Err() error { return nil }
