package segment

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"iris/pkg/pcm"
)

// Classifier labels one chunk as speech or silence.
type Classifier interface {
	IsSpeech(frame pcm.Frame) bool
}

// Calibrator is implemented by classifiers that adapt to ambient noise.
type Calibrator interface {
	Calibrate(noise []pcm.Frame)
}

// Energy classifies by RMS level in int16 units.
type Energy struct {
	mu        sync.Mutex
	base      float64
	ratio     float64
	threshold float64
}

var (
	_ Classifier = (*Energy)(nil)
	_ Calibrator = (*Energy)(nil)
)

// NewEnergy returns a classifier with the given floor threshold. After
// calibration the threshold becomes max(floor, ambient*ratio).
func NewEnergy(threshold, ratio float64) *Energy {
	if threshold <= 0 {
		threshold = 300
	}
	if ratio < 1 {
		ratio = 1.5
	}
	return &Energy{base: threshold, ratio: ratio, threshold: threshold}
}

func (e *Energy) IsSpeech(frame pcm.Frame) bool {
	return pcm.RMS(frame) >= e.Threshold()
}

func (e *Energy) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

func (e *Energy) Calibrate(noise []pcm.Frame) {
	if len(noise) == 0 {
		return
	}
	var sum float64
	for _, f := range noise {
		sum += pcm.RMS(f)
	}
	ambient := sum / float64(len(noise))

	e.mu.Lock()
	e.threshold = math.Max(e.base, ambient*e.ratio)
	e.mu.Unlock()
}

// Spectral gates on energy first and then requires that most of the chunk's
// spectral energy falls inside the voice band.
type Spectral struct {
	energy     *Energy
	sampleRate int
	lowHz      float64
	highHz     float64
	minRatio   float64
}

var (
	_ Classifier = (*Spectral)(nil)
	_ Calibrator = (*Spectral)(nil)
)

func NewSpectral(energy *Energy, sampleRate int, minRatio float64) *Spectral {
	if minRatio <= 0 || minRatio >= 1 {
		minRatio = 0.6
	}
	return &Spectral{
		energy:     energy,
		sampleRate: sampleRate,
		lowHz:      300,
		highHz:     3400,
		minRatio:   minRatio,
	}
}

func (s *Spectral) Calibrate(noise []pcm.Frame) { s.energy.Calibrate(noise) }

func (s *Spectral) IsSpeech(frame pcm.Frame) bool {
	if len(frame) == 0 || !s.energy.IsSpeech(frame) {
		return false
	}
	return s.bandRatio(frame) >= s.minRatio
}

// bandRatio is the share of spectral power between lowHz and highHz.
func (s *Spectral) bandRatio(frame pcm.Frame) float64 {
	n := len(frame)
	w := window.Hamming(n)
	x := make([]float64, n)
	for i, v := range frame {
		x[i] = float64(v) * w[i]
	}
	spec := fft.FFTReal(x)

	binHz := float64(s.sampleRate) / float64(n)
	var total, band float64
	for k := 1; k <= n/2; k++ {
		p := cmplx.Abs(spec[k])
		p *= p
		total += p
		if hz := float64(k) * binHz; hz >= s.lowHz && hz <= s.highHz {
			band += p
		}
	}
	if total == 0 {
		return 0
	}
	return band / total
}
