package wake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"

	"iris/internal/segment"
	"iris/pkg/pcm"
	"iris/pkg/stt"
)

// PhraseConfig tunes the transcript-matching engine.
type PhraseConfig struct {
	Phrases    []string
	SampleRate int
	Chunk      time.Duration

	// Quiet ends a burst. Default: 300ms.
	Quiet time.Duration
	// MaxBurst caps a burst. Default: 2s.
	MaxBurst time.Duration
	// MinBurst is the shortest burst worth transcribing. Default: 200ms.
	MinBurst time.Duration
	// Similarity is the Jaro-Winkler score that counts as a match. Default: 0.88.
	Similarity float64
	// Timeout bounds one transcription. Default: 5s.
	Timeout time.Duration
}

// Phrase spots wake phrases by transcribing short voiced bursts and matching
// the text against configured phrases, phonetically or by string similarity.
type Phrase struct {
	cfg     PhraseConfig
	stt     stt.Transcriber
	cls     segment.Classifier
	phrases [][]string

	frameLength int
	quietChunks int
	maxChunks   int
	minChunks   int

	burst     []pcm.Frame
	voiced    int
	silentRun int
}

var _ Engine = (*Phrase)(nil)

func NewPhrase(tr stt.Transcriber, cls segment.Classifier, cfg PhraseConfig) (*Phrase, error) {
	if len(cfg.Phrases) == 0 {
		return nil, errors.New("wake: no phrases configured")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Chunk <= 0 {
		cfg.Chunk = 20 * time.Millisecond
	}
	if cfg.Quiet <= 0 {
		cfg.Quiet = 300 * time.Millisecond
	}
	if cfg.MaxBurst <= 0 {
		cfg.MaxBurst = 2 * time.Second
	}
	if cfg.MinBurst <= 0 {
		cfg.MinBurst = 200 * time.Millisecond
	}
	if cfg.Similarity <= 0 {
		cfg.Similarity = 0.88
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	p := &Phrase{
		cfg:         cfg,
		stt:         tr,
		cls:         cls,
		frameLength: pcm.FrameLengthFor(cfg.SampleRate, cfg.Chunk),
		quietChunks: int(cfg.Quiet / cfg.Chunk),
		maxChunks:   int(cfg.MaxBurst / cfg.Chunk),
		minChunks:   int(cfg.MinBurst / cfg.Chunk),
	}
	for _, ph := range cfg.Phrases {
		words := normalize(ph)
		if len(words) == 0 {
			return nil, errors.New("wake: empty phrase")
		}
		p.phrases = append(p.phrases, words)
	}
	return p, nil
}

func (p *Phrase) FrameLength() int { return p.frameLength }

func (p *Phrase) SampleRate() int { return p.cfg.SampleRate }

func (p *Phrase) Close() error { return nil }

func (p *Phrase) Process(ctx context.Context, frame pcm.Frame) (int, error) {
	speech := p.cls.IsSpeech(frame)
	if len(p.burst) == 0 && !speech {
		return -1, nil
	}

	p.burst = append(p.burst, frame)
	if speech {
		p.voiced++
		p.silentRun = 0
	} else {
		p.silentRun++
	}

	if p.silentRun < p.quietChunks && len(p.burst) < p.maxChunks {
		return -1, nil
	}

	burst, voiced := p.burst, p.voiced
	p.Reset()
	if voiced < p.minChunks {
		return -1, nil
	}
	return p.check(ctx, burst)
}

// Reset drops any partly collected burst.
func (p *Phrase) Reset() {
	p.burst = nil
	p.voiced = 0
	p.silentRun = 0
}

func (p *Phrase) check(ctx context.Context, burst []pcm.Frame) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res, err := p.stt.Transcribe(ctx, &pcm.Utterance{Frames: burst, SampleRate: p.cfg.SampleRate})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return -1, err
		}
		// a failed burst is just a miss
		slog.Warn("wake phrase transcription failed", "err", err)
		return -1, nil
	}
	idx := p.Match(res.Text)
	slog.Debug("Not detected", "text", res.Text, "match", idx)
	return idx, nil
}

// Match returns the index of the first configured phrase found in text, or -1.
func (p *Phrase) Match(text string) int {
	words := normalize(text)
	for i, phrase := range p.phrases {
		if containsPhrase(words, phrase, p.cfg.Similarity) {
			return i
		}
	}
	return -1
}

func containsPhrase(words, phrase []string, similarity float64) bool {
	n := len(phrase)
	target := strings.Join(phrase, " ")
	for start := 0; start+n <= len(words); start++ {
		window := words[start : start+n]
		if matchr.JaroWinkler(strings.Join(window, " "), target, false) >= similarity {
			return true
		}
		if soundsAlike(window, phrase) {
			return true
		}
	}
	return false
}

// soundsAlike compares words pairwise by Double Metaphone codes.
func soundsAlike(a, b []string) bool {
	for i := range a {
		a1, a2 := matchr.DoubleMetaphone(a[i])
		b1, b2 := matchr.DoubleMetaphone(b[i])
		if a1 == "" || b1 == "" {
			return false
		}
		if a1 != b1 && a1 != b2 && a2 != b1 && (a2 == "" || a2 != b2) {
			return false
		}
	}
	return true
}

func normalize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
