package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WorkshopWatcher polls workshop.yaml and hands every valid new revision to
// apply. A revision is new when the file's contents change; touching the
// file alone does not re-apply it.
type WorkshopWatcher struct {
	path     string
	interval time.Duration
	apply    func(*WorkshopConfig) error
	logger   zerolog.Logger

	mu      sync.Mutex
	modTime time.Time
	digest  [sha256.Size]byte
	current *WorkshopConfig
}

func NewWorkshopWatcher(path string, interval time.Duration, apply func(*WorkshopConfig) error, logger *zerolog.Logger) *WorkshopWatcher {
	if path == "" {
		path = "configs/workshop.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "workshop_config").Logger()
	}
	return &WorkshopWatcher{path: path, interval: interval, apply: apply, logger: l}
}

// Current is the last revision that was applied successfully.
func (w *WorkshopWatcher) Current() *WorkshopConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Poll re-reads the file when its mtime moved and applies it when the
// contents differ from the last applied revision. It reports whether a new
// revision was applied. Errors leave the previous revision in effect.
func (w *WorkshopWatcher) Poll() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("stat workshop config: %w", err)
	}
	if w.current != nil && !info.ModTime().After(w.modTime) {
		return false, nil
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("read workshop config: %w", err)
	}
	prevMod := w.modTime
	w.modTime = info.ModTime()
	digest := sha256.Sum256(data)
	if w.current != nil && digest == w.digest {
		return false, nil
	}

	cfg, err := parseWorkshopConfig(data)
	if err != nil {
		return false, err
	}
	if w.apply != nil {
		if err := w.apply(cfg); err != nil {
			// retry on the next tick even if the file is not touched again
			w.modTime = prevMod
			return false, fmt.Errorf("apply workshop config: %w", err)
		}
	}

	w.digest = digest
	w.current = cfg
	return true, nil
}

// Run polls every interval until ctx is done.
func (w *WorkshopWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			applied, err := w.Poll()
			if err != nil {
				w.logger.Warn().Err(err).Str("path", w.path).Msg("workshop config reload skipped")
				continue
			}
			if applied {
				w.logger.Info().Str("path", w.path).Msg("workshop config reloaded")
			}
		}
	}
}

// WatchWorkshop applies path once and keeps polling it in the background.
// The initial load must succeed.
func WatchWorkshop(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, apply func(*WorkshopConfig) error) (*WorkshopWatcher, error) {
	w := NewWorkshopWatcher(path, interval, apply, logger)
	if _, err := w.Poll(); err != nil {
		return nil, err
	}
	go w.Run(ctx)
	return w, nil
}
