package wake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"

	"iris/pkg/pcm"
)

// PorcupineConfig selects keywords for the Porcupine engine. KeywordPaths
// (custom .ppn files) take precedence over built-in Keywords.
type PorcupineConfig struct {
	AccessKey    string
	ModelPath    string
	Keywords     []string
	KeywordPaths []string
	Sensitivity  float32
}

// Porcupine detects keywords with Picovoice Porcupine.
type Porcupine struct {
	handle porcupine.Porcupine
}

var _ Engine = (*Porcupine)(nil)

func NewPorcupine(cfg PorcupineConfig) (*Porcupine, error) {
	if cfg.AccessKey == "" {
		return nil, errors.New("wake: porcupine access key is required")
	}

	p := porcupine.Porcupine{
		AccessKey: cfg.AccessKey,
		ModelPath: cfg.ModelPath,
	}
	n := len(cfg.KeywordPaths)
	if n > 0 {
		p.KeywordPaths = cfg.KeywordPaths
	} else {
		n = len(cfg.Keywords)
		for _, k := range cfg.Keywords {
			p.BuiltInKeywords = append(p.BuiltInKeywords, porcupine.BuiltInKeyword(strings.ToLower(k)))
		}
	}
	if n == 0 {
		return nil, errors.New("wake: no keywords configured")
	}

	if cfg.Sensitivity > 0 {
		p.Sensitivities = make([]float32, n)
		for i := range p.Sensitivities {
			p.Sensitivities[i] = cfg.Sensitivity
		}
	}

	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("wake: porcupine init: %w", err)
	}
	return &Porcupine{handle: p}, nil
}

func (p *Porcupine) FrameLength() int { return porcupine.FrameLength }

func (p *Porcupine) SampleRate() int { return porcupine.SampleRate }

func (p *Porcupine) Process(_ context.Context, frame pcm.Frame) (int, error) {
	return p.handle.Process(frame)
}

func (p *Porcupine) Close() error {
	return p.handle.Delete()
}
