// Package pcm holds the audio data model shared by capture, segmentation and
// transcription: fixed-length 16-bit frames and the utterances built from them.
package pcm

import (
	"math"
	"time"
)

// Frame is one fixed-length chunk of signed 16-bit mono samples.
type Frame []int16

// Format describes a capture stream.
type Format struct {
	SampleRate  int // Hz
	FrameLength int // samples per frame
}

// FrameDuration returns the wall-clock span of one frame.
func (f Format) FrameDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FrameLength) * time.Second / time.Duration(f.SampleRate)
}

// FrameLengthFor returns how many samples cover d at sampleRate.
func FrameLengthFor(sampleRate int, d time.Duration) int {
	return int(int64(sampleRate) * int64(d) / int64(time.Second))
}

// Utterance is a contiguous run of frames spanning one spoken request.
// A nil *Utterance stands for "no speech detected".
type Utterance struct {
	Frames     []Frame
	SampleRate int

	// SpeechStart is the index of the first frame classified as speech.
	SpeechStart int

	// Voiced is the span from the first to the last speech frame.
	Voiced time.Duration

	// Truncated is set when capture stopped at the maximum utterance length
	// instead of on trailing silence.
	Truncated bool
}

// Empty reports whether u carries no samples.
func (u *Utterance) Empty() bool {
	return u == nil || len(u.Frames) == 0
}

// Samples returns the frames concatenated in capture order.
func (u *Utterance) Samples() []int16 {
	if u.Empty() {
		return nil
	}
	n := 0
	for _, f := range u.Frames {
		n += len(f)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f...)
	}
	return out
}

// Duration is the total audio length of u.
func (u *Utterance) Duration() time.Duration {
	if u.Empty() || u.SampleRate <= 0 {
		return 0
	}
	n := 0
	for _, f := range u.Frames {
		n += len(f)
	}
	return time.Duration(n) * time.Second / time.Duration(u.SampleRate)
}

// RMS returns the root-mean-square level of f in int16 units.
func RMS(f []int16) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f)))
}

// ToFloat32 scales int16 samples into [-1, 1).
func ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	const scale = 1.0 / 32768.0
	for i, v := range in {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// FromFloat32 converts [-1, 1] samples to int16 with clipping.
func FromFloat32(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		x := float64(v) * 32767
		if x > 32767 {
			x = 32767
		} else if x < -32768 {
			x = -32768
		}
		out[i] = int16(math.Round(x))
	}
	return out
}
