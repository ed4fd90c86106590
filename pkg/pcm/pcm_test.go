package pcm

import (
	"testing"
	"time"
)

func TestUtterance_SamplesAndDuration(t *testing.T) {
	u := &Utterance{
		Frames:     []Frame{{1, 2}, {3, 4}, {5, 6}},
		SampleRate: 2,
	}
	got := u.Samples()
	want := []int16{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if d := u.Duration(); d != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", d)
	}
}

func TestUtterance_NilIsEmpty(t *testing.T) {
	var u *Utterance
	if !u.Empty() {
		t.Fatal("nil utterance should be empty")
	}
	if u.Samples() != nil {
		t.Error("nil utterance should have no samples")
	}
	if u.Duration() != 0 {
		t.Error("nil utterance should have zero duration")
	}
}

func TestFormat_FrameDuration(t *testing.T) {
	f := Format{SampleRate: 16000, FrameLength: 320}
	if d := f.FrameDuration(); d != 20*time.Millisecond {
		t.Errorf("FrameDuration = %v, want 20ms", d)
	}
	if n := FrameLengthFor(16000, 30*time.Millisecond); n != 480 {
		t.Errorf("FrameLengthFor = %d, want 480", n)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS([]int16{3, -3, 3, -3}); got != 3 {
		t.Errorf("RMS = %v, want 3", got)
	}
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}

func TestFloatRoundTrip(t *testing.T) {
	in := []int16{0, 16384, -16384, 32767, -32768}
	out := FromFloat32(ToFloat32(in))
	for i := range in {
		d := int(in[i]) - int(out[i])
		if d < -1 || d > 1 {
			t.Errorf("sample %d: got %d, want %d±1", i, out[i], in[i])
		}
	}
}
