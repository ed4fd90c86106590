package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"iris/internal/audio"
	"iris/internal/fault"
)

// Command speaks through an external program such as "say -v {voice} {text}"
// or "espeak-ng -v {voice} {text}". The program is expected to play the
// audio itself and exit when done.
type Command struct {
	argv  []string
	voice string
	guard *audio.Guard
}

// NewCommand parses a whitespace separated argv template. {voice} and {text}
// placeholders are substituted per argument, so text is always passed as one
// literal argument and never through a shell. When the template has no {text}
// placeholder the text is appended as the last argument.
func NewCommand(template, voice string, guard *audio.Guard) (*Command, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, errors.New("tts: empty command template")
	}
	return &Command{argv: argv, voice: voice, guard: guard}, nil
}

func (c *Command) args(text string) []string {
	out := make([]string, 0, len(c.argv)+1)
	hasText := false
	for _, a := range c.argv[1:] {
		if strings.Contains(a, "{text}") {
			hasText = true
		}
		a = strings.ReplaceAll(a, "{voice}", c.voice)
		a = strings.ReplaceAll(a, "{text}", text)
		out = append(out, a)
	}
	if !hasText {
		out = append(out, text)
	}
	return out
}

func (c *Command) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if c.guard != nil {
		release, err := c.guard.Acquire(owner)
		if err != nil {
			return fault.New(fault.SynthesisFailed, "tts.command", err)
		}
		defer release()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.argv[0], c.args(text)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fault.New(fault.Interrupted, "tts.command", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return fault.New(fault.SynthesisFailed, "tts.command", err)
	}
	return nil
}
