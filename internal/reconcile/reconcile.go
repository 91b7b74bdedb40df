// Package reconcile compares stored bytes with metadata rows and reports
// the paths present on one side only.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pavel-fokin/dossier-files/internal/files"
)

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dossier_reconcile_runs_total",
		Help: "Total number of reconciliation runs",
	})

	orphanedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dossier_reconcile_orphaned_files",
		Help: "Stored files without a metadata row, as of the last run",
	})

	missingFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dossier_reconcile_missing_files",
		Help: "Metadata rows whose file is missing, as of the last run",
	})

	durationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dossier_reconcile_duration_seconds",
		Help:    "Reconciliation run duration in seconds",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ErrInProgress is returned when a run is already going.
var ErrInProgress = errors.New("reconciliation already in progress")

// DefaultGrace is how old an orphaned file must be before it is removed.
const DefaultGrace = 5 * time.Minute

// FileStore is the byte store side of the comparison.
type FileStore interface {
	List() ([]string, error)
	ModTime(path string) (time.Time, error)
	Delete(path string) error
}

// Records is the metadata side of the comparison.
type Records interface {
	List(ctx context.Context) ([]*files.File, error)
}

// Report is the outcome of one run.
type Report struct {
	Orphaned []string
	Missing  []string
	Removed  []string
	Checked  int
	Duration time.Duration
}

// Options configures a Sweeper.
type Options struct {
	// Remove deletes orphaned files older than Grace.
	Remove bool
	Grace  time.Duration
	// Interval is the period used by Start.
	Interval time.Duration
}

// Sweeper finds stored files without rows and rows without files. It
// never changes metadata rows.
type Sweeper struct {
	store   FileStore
	records Records
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper returns a Sweeper; a zero Grace means DefaultGrace.
func NewSweeper(store FileStore, records Records, opts Options) *Sweeper {
	if opts.Grace == 0 {
		opts.Grace = DefaultGrace
	}
	return &Sweeper{
		store:   store,
		records: records,
		opts:    opts,
		logger:  slog.Default().With("component", "reconcile"),
		now:     time.Now,
	}
}

// Run performs one comparison.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := s.now()

	// Rows are read before bytes: a document uploaded in between shows up
	// as orphaned and is protected by the grace period.
	rows, err := s.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	paths, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list stored files: %w", err)
	}

	recorded := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		recorded[row.Path] = struct{}{}
	}
	stored := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		stored[p] = struct{}{}
	}

	report := &Report{Checked: len(paths)}
	for _, p := range paths {
		if _, ok := recorded[p]; !ok {
			report.Orphaned = append(report.Orphaned, p)
		}
	}
	for _, row := range rows {
		if _, ok := stored[row.Path]; !ok {
			report.Missing = append(report.Missing, row.Path)
		}
	}
	slices.Sort(report.Orphaned)
	slices.Sort(report.Missing)

	if s.opts.Remove {
		report.Removed = s.removeOrphans(report.Orphaned)
	}

	report.Duration = s.now().Sub(start)

	runsTotal.Inc()
	orphanedFiles.Set(float64(len(report.Orphaned) - len(report.Removed)))
	missingFiles.Set(float64(len(report.Missing)))
	durationSeconds.Observe(report.Duration.Seconds())

	s.logger.Info("Reconciliation finished",
		"checked", report.Checked,
		"orphaned", len(report.Orphaned),
		"missing", len(report.Missing),
		"removed", len(report.Removed),
		"duration_ms", report.Duration.Milliseconds(),
	)
	for _, p := range report.Missing {
		s.logger.Warn("File record has no stored bytes", "path", p)
	}

	return report, nil
}

func (s *Sweeper) removeOrphans(orphaned []string) []string {
	var removed []string
	cutoff := s.now().Add(-s.opts.Grace)

	for _, p := range orphaned {
		modTime, err := s.store.ModTime(p)
		if err != nil {
			s.logger.Warn("Failed to stat orphaned file", "path", p, "error", err)
			continue
		}
		if modTime.After(cutoff) {
			continue
		}
		if err := s.store.Delete(p); err != nil {
			s.logger.Warn("Failed to remove orphaned file", "path", p, "error", err)
			continue
		}
		removed = append(removed, p)
	}
	return removed
}

// Start runs the sweeper every Interval until Stop is called or ctx ends.
func (s *Sweeper) Start(ctx context.Context) {
	if s.opts.Interval <= 0 {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx)

	s.logger.Info("Reconciliation started", "interval", s.opts.Interval.String())
}

// Stop ends the periodic loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Reconciliation stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && !errors.Is(err, ErrInProgress) {
				s.logger.Error("Reconciliation failed", "error", err)
			}
		}
	}
}
