package turn

import (
	"sync"
	"time"

	"iris/internal/dialogue"
)

// State is a position in the turn cycle.
type State int

const (
	Idle State = iota
	WakeDetected
	Capturing
	Transcribing
	Responding
	Speaking
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WakeDetected:
		return "wake_detected"
	case Capturing:
		return "capturing"
	case Transcribing:
		return "transcribing"
	case Responding:
		return "responding"
	case Speaking:
		return "speaking"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome is how a turn ended.
type Outcome int

const (
	// Pending means the turn has not finished yet.
	Pending Outcome = iota
	Completed
	Fallback
	NoSpeech
	EmptyTranscript
	TranscriptionFailed
	DialogueFailed
	SynthesisFailed
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Fallback:
		return "fallback"
	case NoSpeech:
		return "no_speech"
	case EmptyTranscript:
		return "empty_transcript"
	case TranscriptionFailed:
		return "transcription_failed"
	case DialogueFailed:
		return "dialogue_failed"
	case SynthesisFailed:
		return "synthesis_failed"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Session is the process-wide conversation state. Only the controller
// mutates it; other goroutines read it through Snapshot.
type Session struct {
	mu       sync.Mutex
	history  *dialogue.History
	state    State
	turns    int
	outcomes map[Outcome]int
	last     Outcome
	started  time.Time
}

func NewSession() *Session {
	return &Session{
		history:  dialogue.NewHistory(),
		outcomes: make(map[Outcome]int),
		started:  time.Now(),
	}
}

// History is the dialogue history handed to the dialogue engine.
func (s *Session) History() *dialogue.History { return s.history }

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) finish(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	s.outcomes[o]++
	s.last = o
}

// Status is a point-in-time copy of the session.
type Status struct {
	State       State          `json:"-"`
	StateName   string         `json:"state"`
	Armed       bool           `json:"armed"`
	Turns       int            `json:"turns"`
	Exchanges   int            `json:"exchanges"`
	LastOutcome string         `json:"last_outcome,omitempty"`
	Outcomes    map[string]int `json:"outcomes,omitempty"`
	Uptime      string         `json:"uptime"`
}

func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:     s.state,
		StateName: s.state.String(),
		Armed:     s.state == Idle,
		Turns:     s.turns,
		Exchanges: s.history.Len(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if s.turns > 0 {
		st.LastOutcome = s.last.String()
		st.Outcomes = make(map[string]int, len(s.outcomes))
		for o, n := range s.outcomes {
			st.Outcomes[o.String()] = n
		}
	}
	return st
}
