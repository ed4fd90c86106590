package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/afero"

	"iris/internal/fault"
	"iris/internal/recording"
	"iris/pkg/pcm"
)

func testUtterance() *pcm.Utterance {
	return &pcm.Utterance{
		Frames:     []pcm.Frame{make(pcm.Frame, 320), {100, 200, 300}},
		SampleRate: 16000,
	}
}

func newTestClient(srv *httptest.Server) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
}

func TestOpenAI_NoSpeechMakesNoRequest(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewOpenAI(newTestClient(srv), "", "en", nil)
	res, err := tr.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("server called %d times, want 0", n)
	}
}

func TestOpenAI_UploadsWAV(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q, want en", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			head := make([]byte, 4)
			_, _ = io.ReadFull(f, head)
			if string(head) != "RIFF" {
				t.Errorf("upload is not a WAV container: %q", head)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  what time is it  "})
	}))
	defer srv.Close()

	store := recording.NewMemStore()
	tr := NewOpenAI(newTestClient(srv), "", "en", store)
	res, err := tr.Transcribe(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "what time is it" {
		t.Errorf("Text = %q", res.Text)
	}

	entries, _ := afero.ReadDir(store.Fs(), "/")
	if len(entries) != 0 {
		t.Errorf("%d recordings left behind", len(entries))
	}
}

func TestOpenAI_ServerErrorIsTranscriptionFailed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewOpenAI(newTestClient(srv), "", "", nil)
	_, err := tr.Transcribe(context.Background(), testUtterance())
	if !fault.Is(err, fault.TranscriptionFailed) {
		t.Fatalf("err = %v, want TranscriptionFailed", err)
	}
}

func TestCLI(t *testing.T) {
	t.Parallel()
	store, err := recording.NewStore(afero.NewOsFs(), t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	t.Run("no speech", func(t *testing.T) {
		res, err := NewCLI("false", "model.bin", "", store).Transcribe(context.Background(), nil)
		if err != nil || res.Text != "" {
			t.Fatalf("Transcribe(nil) = %+v, %v", res, err)
		}
	})

	t.Run("failure", func(t *testing.T) {
		_, err := NewCLI("false", "model.bin", "", store).Transcribe(context.Background(), testUtterance())
		if !fault.Is(err, fault.TranscriptionFailed) {
			t.Fatalf("err = %v, want TranscriptionFailed", err)
		}
	})

	t.Run("args", func(t *testing.T) {
		got := NewCLI("whisper-cli", "m.bin", "de", store).args("x.wav")
		want := []string{"-m", "m.bin", "-f", "x.wav", "-nt", "-np", "-l", "de"}
		if len(got) != len(want) {
			t.Fatalf("args = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
			}
		}
	})
}
