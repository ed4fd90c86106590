// Package turn drives the voice assistant cycle: wait for the wake word,
// capture one utterance, transcribe it, get a reply and speak it, then start
// over. It owns the failure policy: a failed turn is logged and abandoned,
// only a device failure or cancellation ends the loop.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"iris/internal/dialogue"
	"iris/internal/fault"
	"iris/internal/tts"
	"iris/internal/wake"
	"iris/pkg/pcm"
	"iris/pkg/stt"
)

// Segmenter captures one utterance. A nil utterance with a nil error means
// no speech was heard.
type Segmenter interface {
	Listen(ctx context.Context) (*pcm.Utterance, error)
}

// Responder produces the assistant's reply.
type Responder interface {
	Respond(ctx context.Context, h *dialogue.History, text string) (dialogue.Reply, error)
}

// Cue is played right after the wake word is detected.
type Cue interface {
	Play(ctx context.Context) error
}

// Ducker lowers other audio while the assistant is busy.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

// Event describes one state transition. Elapsed is the time spent in Prev.
type Event struct {
	Turn    int
	State   State
	Prev    State
	Elapsed time.Duration
	Keyword int
	Outcome Outcome
	Text    string
	Reply   string
	Err     error
	At      time.Time
}

// Observer receives every Event. Observe is called synchronously from the
// controller goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Option configures a Controller.
type Option func(*Controller)

func WithCue(c Cue) Option { return func(ctl *Controller) { ctl.cue = c } }

func WithDucker(d Ducker) Option { return func(ctl *Controller) { ctl.ducker = d } }

func WithObserver(o Observer) Option {
	return func(ctl *Controller) { ctl.observers = append(ctl.observers, o) }
}

func WithSession(s *Session) Option { return func(ctl *Controller) { ctl.session = s } }

// restoreTimeout bounds ducking restore after the turn context is gone.
const restoreTimeout = 2 * time.Second

// Controller is the TurnController.
type Controller struct {
	wake    wake.Listener
	seg     Segmenter
	stt     stt.Transcriber
	dlg     Responder
	tts     tts.Synthesizer
	cue     Cue
	ducker  Ducker
	session *Session

	observers []Observer
	now       func() time.Time

	mu      sync.Mutex
	state   State
	entered time.Time
	turn    int
}

func New(w wake.Listener, seg Segmenter, tr stt.Transcriber, dlg Responder, syn tts.Synthesizer, opts ...Option) *Controller {
	c := &Controller{
		wake: w,
		seg:  seg,
		stt:  tr,
		dlg:  dlg,
		tts:  syn,
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.session == nil {
		c.session = NewSession()
	}
	c.entered = c.now()
	return c
}

// Session returns the controller's session.
func (c *Controller) Session() *Session { return c.session }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run repeats turns until ctx is cancelled, which returns nil, or a fatal
// failure occurs, which is returned.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("Turn controller started")
	for {
		outcome, err := c.Turn(ctx)
		if err == nil {
			continue
		}
		c.transition(Event{State: Stopped, Outcome: outcome, Err: err})
		if fault.KindOf(err).Severity() == fault.Shutdown {
			slog.Info("Turn controller stopped")
			return nil
		}
		slog.Error("Turn controller failed", "err", err)
		return err
	}
}

// Turn runs one full cycle starting from Idle. Abandoned turns return their
// outcome and a nil error; a non-nil error means the loop must stop.
func (c *Controller) Turn(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	c.turn++
	idle := c.state == Idle
	c.mu.Unlock()
	if !idle {
		c.transition(Event{State: Idle})
	}

	kw, err := c.wake.Listen(ctx)
	if err != nil {
		return c.stop(ctx, err)
	}
	c.transition(Event{State: WakeDetected, Keyword: kw})

	if c.cue != nil {
		if err := c.cue.Play(ctx); err != nil {
			if ctx.Err() != nil {
				return c.stop(ctx, err)
			}
			slog.Warn("Failed to play wake cue", "err", err)
		}
	}
	if c.ducker != nil {
		if err := c.ducker.Duck(ctx); err != nil {
			slog.Warn("Failed to duck audio", "err", err)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
			defer cancel()
			if err := c.ducker.Restore(rctx); err != nil {
				slog.Warn("Failed to restore audio", "err", err)
			}
		}()
	}

	c.transition(Event{State: Capturing})
	u, err := c.seg.Listen(ctx)
	if err != nil {
		return c.stop(ctx, err)
	}
	if u.Empty() {
		return c.finish(NoSpeech, nil)
	}

	c.transition(Event{State: Transcribing})
	res, err := c.stt.Transcribe(ctx, u)
	if err != nil {
		return c.abandon(ctx, TranscriptionFailed, fault.TranscriptionFailed, err)
	}
	if res.Text == "" {
		return c.finish(EmptyTranscript, nil)
	}
	slog.Info("Transcribed", "text", res.Text, "language", res.Language)

	c.transition(Event{State: Responding, Text: res.Text})
	reply, err := c.dlg.Respond(ctx, c.session.History(), res.Text)
	if err != nil {
		return c.abandon(ctx, DialogueFailed, fault.DialogueFailed, err)
	}
	outcome := Completed
	if reply.Fallback {
		outcome = Fallback
	}
	slog.Info("Reply", "text", reply.Text, "fallback", reply.Fallback)

	c.transition(Event{State: Speaking, Text: res.Text, Reply: reply.Text})
	if err := c.tts.Speak(ctx, reply.Text); err != nil {
		return c.abandon(ctx, SynthesisFailed, fault.SynthesisFailed, err)
	}
	return c.finish(outcome, nil)
}

// abandon applies the failure policy to a stage error. Errors the stage did
// not classify are treated as failures of that stage.
func (c *Controller) abandon(ctx context.Context, outcome Outcome, kind fault.Kind, err error) (Outcome, error) {
	if ctx.Err() != nil {
		return c.stop(ctx, err)
	}
	if fault.KindOf(err) == fault.Unknown {
		err = &fault.Error{Kind: kind, Op: "turn", Err: err}
	}
	switch fault.KindOf(err).Severity() {
	case fault.TurnAbandoned, fault.Recovered:
		slog.Warn("Turn abandoned", "outcome", outcome, "err", err)
		return c.finish(outcome, err)
	default:
		return c.stop(ctx, err)
	}
}

// stop ends the turn with an error for Run. Cancellation of ctx always wins
// over whatever error the stage reported.
func (c *Controller) stop(ctx context.Context, err error) (Outcome, error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return Interrupted, fault.New(fault.Interrupted, "turn", context.Canceled)
	}
	if fault.KindOf(err) == fault.Unknown {
		err = &fault.Error{Kind: fault.DeviceUnavailable, Op: "turn", Err: err}
	}
	return Pending, err
}

func (c *Controller) finish(o Outcome, err error) (Outcome, error) {
	c.session.finish(o)
	c.transition(Event{State: Idle, Outcome: o, Err: err})
	return o, nil
}

func (c *Controller) transition(e Event) {
	now := c.now()

	c.mu.Lock()
	e.Prev = c.state
	e.Elapsed = now.Sub(c.entered)
	e.Turn = c.turn
	e.At = now
	c.state = e.State
	c.entered = now
	c.mu.Unlock()

	c.session.setState(e.State)
	if e.Outcome != Pending {
		slog.Info("Turn finished", "turn", e.Turn, "outcome", e.Outcome)
	} else {
		slog.Debug("Turn state", "turn", e.Turn, "state", e.State, "prev", e.Prev, "elapsed", e.Elapsed)
	}
	for _, o := range c.observers {
		o.Observe(e)
	}
}
