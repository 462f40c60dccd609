// Package inventory maintains a durable, append-only ledger of file records
// (path, filename, sha256) for a tree. New records are merged in batches: a
// batch is either appended in full or rejected without touching the ledger.
package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Inventory is an in-memory view of a ledger file, indexed by path and digest.
// It is safe for concurrent use.
type Inventory struct {
	path string

	mu       sync.RWMutex
	records  []types.FileRecord
	byPath   map[string]int
	byDigest map[types.Digest][]int
}

// New returns an empty inventory that will persist to path.
func New(path string) *Inventory {
	return &Inventory{
		path:     path,
		byPath:   make(map[string]int),
		byDigest: make(map[types.Digest][]int),
	}
}

// FromRecords builds an in-memory inventory with no ledger behind it, such as
// a freshly scanned tree to compare against. Invalid records are dropped and
// the first record for a path wins.
func FromRecords(records []types.FileRecord) *Inventory {
	inv := New("")
	for _, rec := range records {
		normalized, err := normalize(rec)
		if err != nil {
			continue
		}
		if _, dup := inv.byPath[normalized.Path]; dup {
			continue
		}
		inv.add(normalized)
	}
	return inv
}

// Path returns the ledger file path.
func (inv *Inventory) Path() string {
	return inv.path
}

// Len returns the number of records.
func (inv *Inventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.records)
}

// Records returns a copy of all records in ledger order.
func (inv *Inventory) Records() []types.FileRecord {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return append([]types.FileRecord(nil), inv.records...)
}

// Has reports whether path is recorded.
func (inv *Inventory) Has(path string) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	_, ok := inv.byPath[path]
	return ok
}

// Get returns the record for path.
func (inv *Inventory) Get(path string) (types.FileRecord, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	i, ok := inv.byPath[path]
	if !ok {
		return types.FileRecord{}, false
	}
	return inv.records[i], true
}

// Lookup returns every record with the given digest, in ledger order.
func (inv *Inventory) Lookup(digest types.Digest) []types.FileRecord {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	idx := inv.byDigest[digest]
	if len(idx) == 0 {
		return nil
	}
	out := make([]types.FileRecord, len(idx))
	for i, j := range idx {
		out[i] = inv.records[j]
	}
	return out
}

// Digests returns all distinct digests in ascending order.
func (inv *Inventory) Digests() []types.Digest {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]types.Digest, 0, len(inv.byDigest))
	for d := range inv.byDigest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// add indexes r. Callers hold the write lock and have checked byPath.
func (inv *Inventory) add(r types.FileRecord) {
	inv.records = append(inv.records, r)
	i := len(inv.records) - 1
	inv.byPath[r.Path] = i
	inv.byDigest[r.Digest] = append(inv.byDigest[r.Digest], i)
}

// MergeOptions controls Merge.
type MergeOptions struct {
	// AllowKnownDigests admits records whose digest is already in the inventory,
	// e.g. when deliberately combining ledgers of different trees.
	AllowKnownDigests bool
}

// Rejection is a record excluded from a load or merge, with the reason.
type Rejection struct {
	Line   int              `json:"line,omitempty" yaml:"line,omitempty"`
	Record types.FileRecord `json:"record" yaml:"record"`
	Reason string           `json:"reason" yaml:"reason"`
}

// MergeResult describes what a successful Merge did.
type MergeResult struct {
	// Appended are the records written to the ledger, in batch order.
	Appended []types.FileRecord

	// SkippedExisting counts batch records whose path was already recorded.
	SkippedExisting int

	// SkippedRepeated counts batch records repeating an earlier path of the same batch.
	SkippedRepeated int

	// Rejected are batch records that failed validation.
	Rejected []Rejection
}

// Merge validates batch against itself and the inventory and appends the
// survivors to the ledger in one atomic write.
//
// Invalid records are excluded and reported in MergeResult.Rejected. Records
// whose path is already present, or repeated within the batch, are skipped.
// If two surviving records share a digest, or (without AllowKnownDigests) a
// surviving digest is already recorded, Merge returns an *InvariantError and
// neither the ledger nor the in-memory view changes.
func (inv *Inventory) Merge(batch []types.FileRecord, opts MergeOptions) (MergeResult, error) {
	log := logging.Get("inventory")

	inv.mu.Lock()
	defer inv.mu.Unlock()

	var result MergeResult
	candidates := make([]types.FileRecord, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))

	for _, rec := range batch {
		normalized, err := normalize(rec)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{Record: rec, Reason: err.Error()})
			continue
		}
		if _, ok := inv.byPath[normalized.Path]; ok {
			result.SkippedExisting++
			continue
		}
		if _, ok := seen[normalized.Path]; ok {
			result.SkippedRepeated++
			continue
		}
		seen[normalized.Path] = struct{}{}
		candidates = append(candidates, normalized)
	}

	if groups := intraBatchGroups(candidates); len(groups) > 0 {
		metrics.MergesTotal.WithLabelValues(metrics.Fail).Inc()
		err := &InvariantError{Kind: IntraBatch, Groups: groups}
		log.Error("merge aborted", "ledger", inv.path, "kind", err.Kind.String(), "groups", len(groups))
		return result, err
	}
	if !opts.AllowKnownDigests {
		if groups := inv.knownDigestGroups(candidates); len(groups) > 0 {
			metrics.MergesTotal.WithLabelValues(metrics.Fail).Inc()
			err := &InvariantError{Kind: KnownDigest, Groups: groups}
			log.Error("merge aborted", "ledger", inv.path, "kind", err.Kind.String(), "groups", len(groups))
			return result, err
		}
	}

	_, statErr := os.Stat(inv.path)
	if len(candidates) == 0 && statErr == nil {
		log.Debug("merge had nothing to append", "ledger", inv.path,
			"skipped_existing", result.SkippedExisting, "rejected", len(result.Rejected))
		metrics.MergesTotal.WithLabelValues(metrics.Ok).Inc()
		return result, nil
	}

	if err := appendLedger(inv.path, candidates); err != nil {
		metrics.MergesTotal.WithLabelValues(metrics.Fail).Inc()
		return result, types.Wrap(types.ErrIO, "append", inv.path, err)
	}
	for _, rec := range candidates {
		inv.add(rec)
	}
	result.Appended = candidates

	metrics.MergesTotal.WithLabelValues(metrics.Ok).Inc()
	metrics.MergedRecordsTotal.Add(float64(len(candidates)))
	log.Info("merged batch", "ledger", inv.path, "appended", len(candidates),
		"skipped_existing", result.SkippedExisting, "skipped_repeated", result.SkippedRepeated,
		"rejected", len(result.Rejected), "total", len(inv.records))
	return result, nil
}

// normalize canonicalises the digest and fills in Filename.
func normalize(rec types.FileRecord) (types.FileRecord, error) {
	if rec.Path == "" {
		return rec, errors.New("empty path")
	}
	digest, err := types.ParseDigest(string(rec.Digest))
	if err != nil {
		return rec, err
	}
	rec.Digest = digest
	if rec.Filename == "" {
		rec.Filename = filepath.Base(rec.Path)
	}
	return rec, nil
}

func intraBatchGroups(candidates []types.FileRecord) []DigestGroup {
	paths := make(map[types.Digest][]string)
	for _, rec := range candidates {
		paths[rec.Digest] = append(paths[rec.Digest], rec.Path)
	}
	var groups []DigestGroup
	for digest, p := range paths {
		if len(p) > 1 {
			groups = append(groups, DigestGroup{Digest: digest, Incoming: p})
		}
	}
	sortGroups(groups)
	return groups
}

// knownDigestGroups must be called with the lock held.
func (inv *Inventory) knownDigestGroups(candidates []types.FileRecord) []DigestGroup {
	byDigest := make(map[types.Digest]*DigestGroup)
	for _, rec := range candidates {
		idx, known := inv.byDigest[rec.Digest]
		if !known {
			continue
		}
		g, ok := byDigest[rec.Digest]
		if !ok {
			g = &DigestGroup{Digest: rec.Digest}
			for _, i := range idx {
				g.Existing = append(g.Existing, inv.records[i].Path)
			}
			byDigest[rec.Digest] = g
		}
		g.Incoming = append(g.Incoming, rec.Path)
	}
	groups := make([]DigestGroup, 0, len(byDigest))
	for _, g := range byDigest {
		groups = append(groups, *g)
	}
	sortGroups(groups)
	return groups
}

func sortGroups(groups []DigestGroup) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Digest < groups[j].Digest })
}
