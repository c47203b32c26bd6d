package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var ErrStreamClosed = errors.New("capture stream closed")

var frameExtensions = []string{".jpg", ".jpeg", ".png"}

// DirCamera replays the image files of a directory as camera frames, in name
// order, wrapping around at the end.
type DirCamera struct {
	dir string
}

func NewDirCamera(dir string) *DirCamera {
	return &DirCamera{dir: dir}
}

// Open lists the frames. A missing or empty directory is reported as an
// unavailable camera.
func (c *DirCamera) Open(ctx context.Context) (proctor.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", proctor.ErrCameraUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(frameExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(c.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", proctor.ErrCameraUnavailable, c.dir)
	}
	slices.Sort(files)

	return &dirStream{files: files}, nil
}

type dirStream struct {
	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

func (s *dirStream) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	return os.ReadFile(path)
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
