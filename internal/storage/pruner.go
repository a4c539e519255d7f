package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner evicts old job working directories from local disk. Each job keeps
// its intermediate audio and the finished videos under one directory; those
// add up quickly. When an archive is configured, a directory is only removed
// after its video is confirmed present in the archive.
type Pruner struct {
	jobsDir   string
	retention time.Duration
	maxBytes  int64
	interval  time.Duration
	archive   *Archiver
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewPruner creates a pruner that evicts job directories by age and/or total size.
func NewPruner(jobsDir string, retention time.Duration, maxGB int, archive *Archiver, log zerolog.Logger) *Pruner {
	return &Pruner{
		jobsDir:   jobsDir,
		retention: retention,
		maxBytes:  int64(maxGB) * 1024 * 1024 * 1024,
		interval:  1 * time.Hour,
		archive:   archive,
		log:       log.With().Str("component", "pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *Pruner) prune() {
	if p.retention == 0 && p.maxBytes == 0 {
		return
	}

	cutoff := time.Now().Add(-p.retention)
	var totalSize int64
	var prunedCount int
	var prunedBytes int64
	var skippedNotArchived int

	type jobDir struct {
		path    string
		jobID   string
		modTime time.Time
		size    int64
	}
	var dirs []jobDir

	entries, err := os.ReadDir(p.jobsDir)
	if err != nil {
		p.log.Warn().Err(err).Str("dir", p.jobsDir).Msg("prune scan failed")
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(p.jobsDir, e.Name())
		size, modTime := dirStats(path)
		dirs = append(dirs, jobDir{
			path:    path,
			jobID:   e.Name(),
			modTime: modTime,
			size:    size,
		})
		totalSize += size
	}

	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].modTime.Before(dirs[j].modTime)
	})

	for _, d := range dirs {
		shouldPrune := false

		if p.retention > 0 && d.modTime.Before(cutoff) {
			shouldPrune = true
		}
		if p.maxBytes > 0 && totalSize > p.maxBytes {
			shouldPrune = true
		}

		if shouldPrune {
			if p.archive != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				archived := p.archive.Exists(ctx, d.jobID, d.jobID+".mp4")
				cancel()
				if !archived {
					skippedNotArchived++
					p.log.Warn().Str("job_id", d.jobID).Msg("skipping prune: video not archived")
					continue
				}
			}
			if err := os.RemoveAll(d.path); err == nil {
				prunedCount++
				prunedBytes += d.size
				totalSize -= d.size
			}
		}
	}

	if prunedCount > 0 || skippedNotArchived > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Str("freed", humanizeBytes(prunedBytes)).
			Str("remaining", humanizeBytes(totalSize)).
			Int("skipped_not_archived", skippedNotArchived).
			Msg("job directory prune complete")
	}
}

// dirStats walks a job directory and returns its total size and the newest
// file modification time. A freshly written video bumps the whole directory.
func dirStats(dir string) (int64, time.Time) {
	var size int64
	var newest time.Time
	filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		size += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return size, newest
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
