package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidFilename is returned for names containing path separators or
// traversal sequences.
var ErrInvalidFilename = errors.New("invalid filename: contains path separator or traversal sequence")

// validateFilename checks that a name is safe to join onto the store's
// directory.
func validateFilename(name string) error {
	if name == "" {
		return errors.New("filename cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return ErrInvalidFilename
	}
	return nil
}

// FileStore owns the directory holding uploaded recordings and generated
// reply audio. Reply files are served by name through the static endpoint
// until the janitor removes them.
type FileStore struct {
	dir       string
	retention time.Duration
}

// NewFileStore creates the directory if needed. retention bounds how long
// files are kept; zero keeps them until process exit.
func NewFileStore(dir string, retention time.Duration) (*FileStore, error) {
	if dir == "" {
		dir = "temp_uploads"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &FileStore{dir: dir, retention: retention}, nil
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string { return s.dir }

// SaveUpload writes an uploaded recording to a uniquely named temp file and
// returns its path. The caller removes it when the turn finishes.
func (s *FileStore) SaveUpload(r io.Reader, ext string) (string, error) {
	name := fmt.Sprintf("input_%s%s", uuid.New().String(), sanitizeExt(ext))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) // #nosec G304 - name is generated, not caller-supplied
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

// TempPath returns a fresh path inside the store for intermediate files
// such as converted waveforms.
func (s *FileStore) TempPath(prefix, ext string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s%s", prefix, uuid.New().String(), sanitizeExt(ext)))
}

// SaveReply stores generated reply audio and returns the public filename
// to hand to the client.
func (s *FileStore) SaveReply(audio []byte) (string, error) {
	name := fmt.Sprintf("reply_%s.mp3", uuid.New().String())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return "", fmt.Errorf("write reply audio: %w", err)
	}
	return name, nil
}

// Open opens a stored file by its public name for serving.
func (s *FileStore) Open(name string) (*os.File, error) {
	if err := validateFilename(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name)) // #nosec G304 - name validated above
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Remove deletes a file by path, tolerating files already gone.
func (s *FileStore) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove media file", "path", path, "error", err)
	}
}

// StartJanitor sweeps the directory on interval, deleting files older than
// the retention window, until ctx is cancelled. No-op when retention is 0.
func (s *FileStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n, err := s.sweep(time.Now()); err != nil {
					slog.Error("media janitor sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("media janitor removed expired files", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *FileStore) sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read media directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > s.retention {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// sanitizeExt keeps only a plain extension, discarding anything that could
// escape the directory.
func sanitizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.ContainsAny(ext[1:], `./\`) {
		return ""
	}
	return ext
}
