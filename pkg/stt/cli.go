package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"iris/internal/fault"
	"iris/internal/recording"
	"iris/pkg/pcm"
)

// CLI runs a whisper.cpp command-line binary on a WAV file. The store must be
// backed by the OS filesystem so the binary can read the file.
type CLI struct {
	ExecPath  string
	ModelPath string
	Language  string
	store     *recording.Store
}

var _ Transcriber = (*CLI)(nil)

func NewCLI(execPath, modelPath, language string, store *recording.Store) *CLI {
	return &CLI{ExecPath: execPath, ModelPath: modelPath, Language: language, store: store}
}

func (c *CLI) args(path string) []string {
	args := []string{"-m", c.ModelPath, "-f", path, "-nt", "-np"}
	if c.Language != "" {
		args = append(args, "-l", c.Language)
	}
	return args
}

func (c *CLI) Transcribe(ctx context.Context, u *pcm.Utterance) (Result, error) {
	if u.Empty() {
		return Result{}, nil
	}

	path, err := c.store.Save(u)
	if err != nil {
		return Result{}, fault.New(fault.TranscriptionFailed, "stt.cli", err)
	}
	defer func() {
		if err := c.store.Discard(path); err != nil {
			slog.Warn("failed to discard recording", "path", path, "err", err)
		}
	}()

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ExecPath, c.args(path)...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fault.New(fault.TranscriptionFailed, "stt.cli",
			fmt.Errorf("%s: %w: %s", c.ExecPath, err, strings.TrimSpace(stderr.String())))
	}

	text := strings.Join(strings.Fields(out.String()), " ")
	slog.Info("Transcribed command text", "text", text)
	return Result{Text: text, Language: c.Language}, nil
}
