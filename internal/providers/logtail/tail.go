// Package logtail follows vendor log files that are appended to by
// third-party VR software and hands each new line to a callback.
package logtail

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
)

// Tailer follows the newest file in Dir matching Pattern. A file last
// written before the tailer was created is skipped to its end unless
// FromStart is set; anything written since is read from the start.
type Tailer struct {
	Dir       string
	Pattern   string
	FromStart bool

	onLine  func(string)
	logger  *logging.Logger
	created time.Time

	mu      sync.Mutex
	current string
	offset  int64
	partial string
}

// New creates a tailer. Nothing is read until Poll or Run is called.
func New(dir, pattern string, onLine func(string), logger *logging.Logger) *Tailer {
	return &Tailer{
		Dir:     dir,
		Pattern: pattern,
		onLine:  onLine,
		logger:  logger.Component("logtail"),
		created: time.Now(),
	}
}

// Poll reads whatever has been appended since the last call. A missing
// directory or file is not an error: vendor software may not be installed
// yet or may be rotating its logs.
func (t *Tailer) Poll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newest, err := t.newestLocked()
	if err != nil || newest == "" {
		return err
	}
	if newest != t.current {
		t.logger.Debug("Following log file", zap.String("file", newest))
		first := t.current == ""
		t.current = newest
		t.offset = 0
		t.partial = ""
		if first && !t.FromStart {
			if info, err := os.Stat(newest); err == nil && !info.ModTime().After(t.created) {
				t.offset = info.Size()
			}
		}
	}
	return t.readLocked()
}

func (t *Tailer) newestLocked() (string, error) {
	matches, err := doublestar.Glob(os.DirFS(t.Dir), t.Pattern)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var (
		newest  string
		newestT int64
	)
	for _, m := range matches {
		full := filepath.Join(t.Dir, m)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestT || (mod == newestT && full > newest) {
			newest, newestT = full, mod
		}
	}
	return newest, nil
}

func (t *Tailer) readLocked() error {
	f, err := os.Open(t.current)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		// Truncated in place
		t.offset = 0
		t.partial = ""
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	for {
		chunk, err := reader.ReadString('\n')
		t.offset += int64(len(chunk))
		if err != nil {
			t.partial += chunk
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line := t.partial + chunk
		t.partial = ""
		t.emit(trimEOL(line))
	}
}

func (t *Tailer) emit(line string) {
	defer t.logger.Recover("logtail line handler")
	t.onLine(line)
}

// Run polls on every filesystem event in Dir until ctx is cancelled.
// If the directory cannot be watched it returns the watcher error and
// callers fall back to calling Poll from their own ticker.
func (t *Tailer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(t.Dir); err != nil {
		return err
	}
	if err := t.Poll(); err != nil {
		t.logger.Warn("Initial log read failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := t.Poll(); err != nil {
				t.logger.Warn("Failed to read log", zap.String("file", event.Name), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("Log watcher error", zap.Error(err))
		}
	}
}

// Current returns the file being followed
func (t *Tailer) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
