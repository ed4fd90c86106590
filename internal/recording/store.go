// Package recording persists utterances as WAV files on an afero filesystem,
// in memory by default or on disk when recordings are kept for inspection.
package recording

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"iris/pkg/audioconv"
	"iris/pkg/pcm"
)

// Store writes utterances under dir on fs.
type Store struct {
	fs   afero.Fs
	dir  string
	keep bool
	seq  atomic.Uint64
}

// NewStore returns a store rooted at dir. When keep is false, Discard
// deletes files once a consumer is done with them.
func NewStore(fs afero.Fs, dir string, keep bool) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording: mkdir %q: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir, keep: keep}, nil
}

// NewMemStore returns an in-memory store that discards every file.
func NewMemStore() *Store {
	return &Store{fs: afero.NewMemMapFs(), dir: "/"}
}

func (s *Store) Fs() afero.Fs { return s.fs }

// Save encodes u as a WAV file and returns its path.
func (s *Store) Save(u *pcm.Utterance) (string, error) {
	if u.Empty() {
		return "", fmt.Errorf("recording: empty utterance")
	}
	name := fmt.Sprintf("utterance-%s-%03d.wav", time.Now().Format("20060102-150405"), s.seq.Add(1))
	path := filepath.Join(s.dir, name)

	f, err := s.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("recording: create: %w", err)
	}
	if err := audioconv.EncodeWAV(f, u.Samples(), u.SampleRate); err != nil {
		f.Close()
		_ = s.fs.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("recording: close: %w", err)
	}
	return path, nil
}

func (s *Store) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// Discard removes path unless the store keeps recordings.
func (s *Store) Discard(path string) error {
	if s.keep {
		return nil
	}
	return s.fs.Remove(path)
}
