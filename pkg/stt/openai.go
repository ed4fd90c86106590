package stt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"iris/internal/fault"
	"iris/internal/recording"
	"iris/pkg/pcm"
)

// OpenAI transcribes through the hosted transcription endpoint. Utterances
// are uploaded as WAV files written through a recording store.
type OpenAI struct {
	client   openai.Client
	model    string
	language string
	store    *recording.Store
}

var _ Transcriber = (*OpenAI)(nil)

// NewOpenAI builds a transcriber. model defaults to whisper-1; language is an
// ISO-639-1 hint and may be empty. A nil store keeps files in memory.
func NewOpenAI(client openai.Client, model, language string, store *recording.Store) *OpenAI {
	if model == "" {
		model = "whisper-1"
	}
	if store == nil {
		store = recording.NewMemStore()
	}
	return &OpenAI{client: client, model: model, language: language, store: store}
}

func (t *OpenAI) Transcribe(ctx context.Context, u *pcm.Utterance) (Result, error) {
	if u.Empty() {
		return Result{}, nil
	}

	path, err := t.store.Save(u)
	if err != nil {
		return Result{}, fault.New(fault.TranscriptionFailed, "stt.openai", err)
	}
	defer func() {
		if err := t.store.Discard(path); err != nil {
			slog.Warn("failed to discard recording", "path", path, "err", err)
		}
	}()

	f, err := t.store.Open(path)
	if err != nil {
		return Result{}, fault.New(fault.TranscriptionFailed, "stt.openai", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, filepath.Base(path), "audio/wav"),
		Model: openai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fault.New(fault.TranscriptionFailed, "stt.openai", fmt.Errorf("transcription: %w", err))
	}

	text := strings.TrimSpace(resp.Text)
	slog.Info("Transcribed command text", "text", text)
	return Result{Text: text, Language: t.language}, nil
}
