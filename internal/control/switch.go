package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"

	"sigtrade/internal/logger"
)

const (
	ActionPause  = "pause"
	ActionResume = "resume"
)

var ErrInvalidAction = errors.New("invalid control action")

var controlLog = logger.Component("control")

// ChangeListener is called after the paused flag changes.
type ChangeListener func(paused bool)

// Switch is the externally toggled pause flag, persisted as {"paused": bool}
// in a status file so another process can flip it.
type Switch struct {
	path   string
	paused atomic.Bool

	mu        sync.Mutex
	listeners []ChangeListener
}

// New loads the current state from path. A missing file means running.
func New(path string) (*Switch, error) {
	s := &Switch{path: filepath.Clean(path)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Switch) Path() string { return s.path }

func (s *Switch) Paused() bool { return s.paused.Load() }

func (s *Switch) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Apply maps a dashboard action onto the switch.
func (s *Switch) Apply(action string) (bool, error) {
	switch action {
	case ActionPause:
		return true, s.SetPaused(true)
	case ActionResume:
		return false, s.SetPaused(false)
	default:
		return s.Paused(), fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

// SetPaused persists the flag and updates the in-memory state.
func (s *Switch) SetPaused(paused bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	body := []byte(fmt.Sprintf("{\"paused\": %t}\n", paused))
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write control file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace control file: %w", err)
	}
	s.set(paused)
	return nil
}

// Reload re-reads the status file. Unparseable content keeps the current state.
func (s *Switch) Reload() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.set(false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read control file: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		controlLog.Warnf("ignoring malformed control file %s", s.path)
		return nil
	}
	s.set(gjson.GetBytes(raw, "paused").Bool())
	return nil
}

func (s *Switch) set(paused bool) {
	if s.paused.Swap(paused) == paused {
		return
	}
	if paused {
		controlLog.Infof("engine paused")
	} else {
		controlLog.Infof("engine resumed")
	}
	s.mu.Lock()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(paused)
	}
}

// Watch follows external edits of the status file until ctx is done.
func (s *Switch) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("control watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != s.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				controlLog.Warnf("reload control file failed: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			controlLog.Warnf("control watcher error: %v", err)
		}
	}
}
