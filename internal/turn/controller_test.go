package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"iris/internal/audio"
	"iris/internal/audio/mock"
	"iris/internal/dialogue"
	dmock "iris/internal/dialogue/mock"
	"iris/internal/fault"
	"iris/internal/segment"
	"iris/pkg/pcm"
	"iris/pkg/stt"
)

// wakeN reports keyword 0 n times, then blocks until cancelled.
type wakeN struct {
	mu sync.Mutex
	n  int
}

func (w *wakeN) Listen(ctx context.Context) (int, error) {
	w.mu.Lock()
	if w.n > 0 {
		w.n--
		w.mu.Unlock()
		return 0, nil
	}
	w.mu.Unlock()
	<-ctx.Done()
	return -1, ctx.Err()
}

type fixedSegmenter struct {
	u   *pcm.Utterance
	err error
}

func (s *fixedSegmenter) Listen(context.Context) (*pcm.Utterance, error) { return s.u, s.err }

type fakeSTT struct {
	text  string
	err   error
	calls int
}

func (f *fakeSTT) Transcribe(_ context.Context, u *pcm.Utterance) (stt.Result, error) {
	f.calls++
	if u.Empty() {
		return stt.Result{}, nil
	}
	return stt.Result{Text: f.text, Language: "en"}, f.err
}

type fakeSynth struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (f *fakeSynth) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return f.err
}

type fakeDucker struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDucker) Duck(context.Context) error { d.record("duck"); return nil }

func (d *fakeDucker) Restore(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	d.record("restore")
	return nil
}

func (d *fakeDucker) record(s string) {
	d.mu.Lock()
	d.calls = append(d.calls, s)
	d.mu.Unlock()
}

func (d *fakeDucker) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.events))
	for i, e := range r.events {
		out[i] = e.State
	}
	return out
}

func utterance() *pcm.Utterance {
	return &pcm.Utterance{Frames: []pcm.Frame{mock.Tone(320, 3000)}, SampleRate: 16000}
}

type fixture struct {
	wake  *wakeN
	seg   *fixedSegmenter
	stt   *fakeSTT
	be    *dmock.Backend
	synth *fakeSynth
	rec   *recorder
	ctl   *Controller
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		wake:  &wakeN{n: 1},
		seg:   &fixedSegmenter{u: utterance()},
		stt:   &fakeSTT{text: "what time is it"},
		be:    &dmock.Backend{Reply: "It is noon."},
		synth: &fakeSynth{},
		rec:   &recorder{},
	}
	cfg := dialogue.DefaultConfig()
	cfg.FallbackReply = "fallback"
	eng := dialogue.NewEngine(f.be, cfg)
	opts = append([]Option{WithObserver(f.rec)}, opts...)
	f.ctl = New(f.wake, f.seg, f.stt, eng, f.synth, opts...)
	return f
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTurn_Completed(t *testing.T) {
	t.Parallel()
	f := newFixture()

	got, err := f.ctl.Turn(context.Background())
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if got != Completed {
		t.Errorf("outcome = %v, want completed", got)
	}
	want := []State{WakeDetected, Capturing, Transcribing, Responding, Speaking, Idle}
	if s := f.rec.states(); !equalStates(s, want) {
		t.Errorf("states = %v, want %v", s, want)
	}
	if len(f.synth.spoken) != 1 || f.synth.spoken[0] != "It is noon." {
		t.Errorf("spoken = %q", f.synth.spoken)
	}
	if n := f.ctl.Session().History().Len(); n != 1 {
		t.Errorf("history len = %d, want 1", n)
	}
	if f.ctl.State() != Idle {
		t.Errorf("state = %v, want idle", f.ctl.State())
	}
}

func TestTurn_Outcomes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		setup  func(*fixture)
		want   Outcome
		spoken int
	}{
		{"no speech", func(f *fixture) { f.seg.u = nil }, NoSpeech, 0},
		{"empty transcript", func(f *fixture) { f.stt.text = "" }, EmptyTranscript, 0},
		{"transcription failed", func(f *fixture) {
			f.stt.err = fault.New(fault.TranscriptionFailed, "stt", errors.New("boom"))
		}, TranscriptionFailed, 0},
		{"unclassified stt error", func(f *fixture) { f.stt.err = errors.New("boom") }, TranscriptionFailed, 0},
		{"dialogue unavailable", func(f *fixture) {
			f.be.Err = fault.New(fault.DialogueUnavailable, "llm", errors.New("503"))
		}, Fallback, 1},
		{"dialogue failed", func(f *fixture) { f.be.Err = errors.New("401") }, DialogueFailed, 0},
		{"synthesis failed", func(f *fixture) {
			f.synth.err = fault.New(fault.SynthesisFailed, "tts", errors.New("no voice"))
		}, SynthesisFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			tt.setup(f)
			got, err := f.ctl.Turn(context.Background())
			if err != nil {
				t.Fatalf("Turn returned loop-ending error: %v", err)
			}
			if got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			if len(f.synth.spoken) != tt.spoken {
				t.Errorf("spoken %d replies, want %d", len(f.synth.spoken), tt.spoken)
			}
			if f.ctl.State() != Idle {
				t.Errorf("state = %v, want idle", f.ctl.State())
			}
		})
	}
}

func TestTurn_NoSpeechSkipsTranscriber(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.seg.u = nil
	if _, err := f.ctl.Turn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.stt.calls != 0 {
		t.Errorf("transcriber called %d times", f.stt.calls)
	}
}

func TestTurn_FailureKeepsHistory(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.ctl.Session().History().Append("earlier", "reply")
	f.be.Err = errors.New("bad request")

	if _, err := f.ctl.Turn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := f.ctl.Session().History().Len(); n != 1 {
		t.Errorf("history len = %d, want 1", n)
	}
}

func TestTurn_DuckingWrapsTurn(t *testing.T) {
	t.Parallel()
	d := &fakeDucker{}
	f := newFixture(WithDucker(d))
	f.seg.u = nil

	if _, err := f.ctl.Turn(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := d.Calls()
	if len(calls) != 2 || calls[0] != "duck" || calls[1] != "restore" {
		t.Errorf("ducker calls = %v", calls)
	}
}

func TestRun_FatalDeviceError(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.seg.err = fault.New(fault.DeviceUnavailable, "mic.open", errors.New("unplugged"))

	err := f.ctl.Run(context.Background())
	if !fault.Is(err, fault.DeviceUnavailable) {
		t.Fatalf("Run = %v, want DeviceUnavailable", err)
	}
	if f.ctl.State() != Stopped {
		t.Errorf("state = %v, want stopped", f.ctl.State())
	}
}

func TestRun_LoopsUntilCancelled(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.wake.n = 3
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	finished := 0
	f.ctl.observers = append(f.ctl.observers, ObserverFunc(func(e Event) {
		if e.State == Idle && e.Outcome != Pending {
			mu.Lock()
			finished++
			if finished == 3 {
				cancel()
			}
			mu.Unlock()
		}
	}))

	if err := f.ctl.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil on cancel", err)
	}
	st := f.ctl.Session().Snapshot()
	if st.Turns != 3 || st.Exchanges != 3 || st.Outcomes["completed"] != 3 {
		t.Errorf("snapshot = %+v", st)
	}
	if st.StateName != "stopped" || st.Armed {
		t.Errorf("state = %q armed=%v", st.StateName, st.Armed)
	}
}

// Cancelling while the segmenter holds the microphone ends Run within a
// chunk and leaves both devices free.
func TestRun_InterruptWhileCapturing(t *testing.T) {
	t.Parallel()
	drv := &mock.Driver{
		Frame: func(int) pcm.Frame { return mock.Tone(320, 3000) },
		Delay: 5 * time.Millisecond,
	}
	mic := audio.NewMicrophone(drv, 16000)
	cfg := segment.DefaultConfig()
	cfg.MaxUtterance = 0
	seg, err := segment.New(mic, segment.NewEnergy(300, 1.5), cfg)
	if err != nil {
		t.Fatal(err)
	}
	speaker := audio.NewGuard("speaker")
	synth := &fakeSynth{}
	d := &fakeDucker{}

	capturing := make(chan struct{})
	var once sync.Once
	ctl := New(&wakeN{n: 1}, seg, &fakeSTT{text: "x"},
		dialogue.NewEngine(&dmock.Backend{Reply: "y"}, dialogue.DefaultConfig()), synth,
		WithDucker(d),
		WithObserver(ObserverFunc(func(e Event) {
			if e.State == Capturing {
				once.Do(func() { close(capturing) })
			}
		})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx) }()

	select {
	case <-capturing:
	case <-time.After(2 * time.Second):
		t.Fatal("controller never reached capturing")
	}
	for drv.Reads() < 5 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Run did not return after cancel")
	}

	if mic.Guard().InUse() {
		t.Errorf("microphone still held by %q", mic.Guard().Owner())
	}
	if speaker.InUse() {
		t.Error("speaker still held")
	}
	if drv.Opens() != drv.Closes() {
		t.Errorf("opens=%d closes=%d", drv.Opens(), drv.Closes())
	}
	if len(synth.spoken) != 0 {
		t.Errorf("spoke %q after interrupt", synth.spoken)
	}
	if calls := d.Calls(); len(calls) != 2 || calls[1] != "restore" {
		t.Errorf("ducker calls = %v, want restore after interrupt", calls)
	}
	if ctl.State() != Stopped {
		t.Errorf("state = %v, want stopped", ctl.State())
	}
}

func TestStatus_BeforeAnyTurn(t *testing.T) {
	t.Parallel()
	st := NewSession().Snapshot()
	if !st.Armed || st.StateName != "idle" || st.Turns != 0 || st.LastOutcome != "" {
		t.Errorf("snapshot = %+v", st)
	}
}
