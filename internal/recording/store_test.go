package recording

import (
	"strings"
	"testing"

	"github.com/spf13/afero"

	"iris/pkg/audioconv"
	"iris/pkg/pcm"
)

func utterance() *pcm.Utterance {
	return &pcm.Utterance{
		Frames:     []pcm.Frame{{100, -100, 200}, {300, -300, 0}},
		SampleRate: 16000,
	}
}

func TestStore_SaveOpenDiscard(t *testing.T) {
	t.Parallel()
	s := NewMemStore()

	path, err := s.Save(utterance())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(path, ".wav") {
		t.Errorf("path %q should end in .wav", path)
	}

	f, err := s.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	samples, rate, err := audioconv.DecodeWAV(f)
	f.Close()
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || len(samples) != 6 || samples[3] != 300 {
		t.Errorf("decoded rate=%d samples=%v", rate, samples)
	}

	if err := s.Discard(path); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if ok, _ := afero.Exists(s.Fs(), path); ok {
		t.Error("file still exists after Discard")
	}
}

func TestStore_KeepRetainsFiles(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, "/recordings", true)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	path, err := s.Save(utterance())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Discard(path); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if ok, _ := afero.Exists(fs, path); !ok {
		t.Error("kept recording was removed")
	}
}

func TestStore_SaveRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := NewMemStore().Save(nil); err == nil {
		t.Fatal("expected error for nil utterance")
	}
}
