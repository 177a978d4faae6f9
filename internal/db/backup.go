package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	snapshotPrefix = "taller_"
	snapshotSuffix = ".db"
	snapshotLayout = "20060102T150405"
)

// BackupConfig controls the periodic snapshot loop.
type BackupConfig struct {
	Enabled       bool
	Interval      time.Duration
	StoragePath   string
	RetentionDays int
}

// Snapshotter copies the SQLite file into StoragePath on a fixed interval and
// prunes copies older than the retention window. The newest snapshot is
// never pruned.
type Snapshotter struct {
	db     *DB
	cfg    BackupConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewSnapshotter(db *DB, cfg BackupConfig, logger *zerolog.Logger) *Snapshotter {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "backups"
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "snapshots").Logger()
	}
	return &Snapshotter{db: db, cfg: cfg, logger: l, now: time.Now}
}

// Run snapshots once right away and then on every tick until ctx is done.
func (s *Snapshotter) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("snapshots disabled")
		return
	}
	s.logger.Info().Dur("interval", s.cfg.Interval).Str("dir", s.cfg.StoragePath).Msg("snapshots enabled")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Snapshotter) tick(ctx context.Context) {
	path, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot failed")
		return
	}
	removed, err := s.Prune()
	if err != nil {
		s.logger.Warn().Err(err).Msg("snapshot prune failed")
	}
	s.logger.Info().Str("path", path).Int("pruned", removed).Msg("snapshot written")
}

// Snapshot writes a new copy and returns its path.
func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	name := snapshotPrefix + s.now().UTC().Format(snapshotLayout) + snapshotSuffix
	path := filepath.Join(s.cfg.StoragePath, name)
	if err := s.db.Backup(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// Prune removes snapshots whose embedded timestamp is older than
// RetentionDays and reports how many were removed. Files that do not follow
// the snapshot naming scheme are left alone.
func (s *Snapshotter) Prune() (int, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		return 0, fmt.Errorf("read snapshot dir: %w", err)
	}

	type snapshot struct {
		name  string
		taken time.Time
	}
	var snaps []snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if taken, ok := snapshotTime(e.Name()); ok {
			snaps = append(snaps, snapshot{name: e.Name(), taken: taken})
		}
	}
	if len(snaps) < 2 {
		return 0, nil
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].taken.After(snaps[j].taken) })

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, snap := range snaps[1:] {
		if !snap.taken.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StoragePath, snap.name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", snap.name, err)
		}
		removed++
	}
	return removed, nil
}

func snapshotTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	t, err := time.Parse(snapshotLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
