// Package metrics defines stow's prometheus collectors. A run exports them as a
// node-exporter textfile when a textfile path is configured.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Keys for the result label.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Registry holds every stow collector. It is separate from the default
// registry so exports contain only stow series.
var Registry = prometheus.NewRegistry()

// Collectors for hashing, routing, inventory merges and moves.
var (
	HashedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stow_hashed_bytes_total",
		Help: "Cumulative number of bytes read while computing digests.",
	})
	HashedFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stow_hashed_files_total",
		Help: "Cumulative number of digest computations, by result.",
	}, []string{"result"})
	DigestCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stow_digest_cache_hits_total",
		Help: "Cumulative number of digests served from the cache.",
	})
	OutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stow_outcomes_total",
		Help: "Cumulative number of per-file outcomes, by operation and status.",
	}, []string{"operation", "status"})
	MergesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stow_inventory_merges_total",
		Help: "Cumulative number of inventory merges, by result.",
	}, []string{"result"})
	MergedRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stow_inventory_merged_records_total",
		Help: "Cumulative number of records appended to inventories.",
	})
	CopyFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stow_copy_fallbacks_total",
		Help: "Cumulative number of moves that fell back to copy and delete.",
	})
	LastRunTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stow_last_run_timestamp_seconds",
		Help: "Unix time of the last completed run, by operation.",
	}, []string{"operation"})
)

func init() {
	Registry.MustRegister(
		HashedBytesTotal,
		HashedFilesTotal,
		DigestCacheHitsTotal,
		OutcomesTotal,
		MergesTotal,
		MergedRecordsTotal,
		CopyFallbacksTotal,
		LastRunTimestamp,
	)
}

// ObserveOutcomes counts outcomes of one operation by status.
func ObserveOutcomes(operation string, outcomes []types.Outcome) {
	for _, o := range outcomes {
		OutcomesTotal.WithLabelValues(operation, string(o.Status)).Inc()
	}
}

// MarkRun records the completion time of an operation.
func MarkRun(operation string) {
	LastRunTimestamp.WithLabelValues(operation).SetToCurrentTime()
}

// WriteTextfile writes the registry in text exposition format to path.
// The file is replaced atomically so a collector never reads a partial export.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
