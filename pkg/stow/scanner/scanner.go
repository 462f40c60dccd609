package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

var errEmptyRoot = errors.New("empty scan root")

// Result is the outcome of a scan.
type Result struct {
	// Root is the canonical scan root.
	Root string

	// Records are the hashed files, sorted by path.
	Records []types.FileRecord

	// Errors are per-path failures, sorted by path.
	Errors []types.ScanError

	FilesSeen   int64
	FilesHashed int64
	BytesHashed int64
	Excluded    int64
	Elapsed     time.Duration
}

// Scanner walks a tree with fastwalk and hashes files in a bounded pool.
type Scanner struct {
	opts    Options
	exclude *Excluder
	log     *logging.Logger

	filesSeen   atomic.Int64
	filesHashed atomic.Int64
	bytesHashed atomic.Int64
	excluded    atomic.Int64
	errCount    atomic.Int64

	currentPath  atomic.Value
	lastProgress atomic.Int64

	seen sync.Map

	records   []types.FileRecord
	recordsMu sync.Mutex

	errors   []types.ScanError
	errorsMu sync.Mutex
}

// New creates a single-use Scanner. It fails on an empty root or a bad exclude pattern.
func New(opts Options) (*Scanner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	exclude, err := NewExcluder(opts.Exclude, opts.SkipPaths)
	if err != nil {
		return nil, types.Wrap(types.ErrConfiguration, "exclude", "", err)
	}
	s := &Scanner{
		opts:    opts,
		exclude: exclude,
		log:     logging.Get("scanner"),
	}
	s.currentPath.Store("")
	return s, nil
}

// Scan walks the tree and returns every hashed record. It returns an error
// only when the root is unusable or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	start := time.Now()

	root, err := resolveRoot(s.opts.Root)
	if err != nil {
		return nil, err
	}
	s.log.Info("scan started", "root", root, "workers", s.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if gctx.Err() != nil {
			return fastwalk.ErrSkipFiles
		}
		if err != nil {
			s.addError(path, err)
			return nil
		}
		if path != root && s.exclude.Match(path) {
			s.excluded.Add(1)
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		s.filesSeen.Add(1)
		s.currentPath.Store(path)
		s.reportProgress()

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			s.hashFile(path)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		return nil, types.Wrap(types.ErrIO, "walk", root, walkErr)
	}

	sort.Slice(s.records, func(i, j int) bool { return s.records[i].Path < s.records[j].Path })
	sort.Slice(s.errors, func(i, j int) bool { return s.errors[i].Path < s.errors[j].Path })

	result := &Result{
		Root:        root,
		Records:     s.records,
		Errors:      s.errors,
		FilesSeen:   s.filesSeen.Load(),
		FilesHashed: s.filesHashed.Load(),
		BytesHashed: s.bytesHashed.Load(),
		Excluded:    s.excluded.Load(),
		Elapsed:     time.Since(start),
	}
	s.log.Info("scan complete", "root", root, "records", len(result.Records),
		"errors", len(result.Errors), "bytes", types.FormatSize(result.BytesHashed),
		"elapsed", result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// hashFile canonicalises path, hashes it and records the result.
func (s *Scanner) hashFile(path string) {
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		s.addError(path, err)
		return
	}
	if canonical, err = filepath.Abs(canonical); err != nil {
		s.addError(path, err)
		return
	}
	if _, dup := s.seen.LoadOrStore(canonical, struct{}{}); dup {
		return
	}

	info, err := os.Stat(canonical)
	if err != nil {
		s.addError(canonical, err)
		return
	}

	digest, err := s.opts.Hasher.Hash(canonical)
	if err != nil {
		s.addError(canonical, err)
		return
	}

	rec := types.NewFileRecord(canonical, digest)
	s.filesHashed.Add(1)
	s.bytesHashed.Add(info.Size())

	s.recordsMu.Lock()
	s.records = append(s.records, rec)
	s.recordsMu.Unlock()

	if s.opts.OnRecord != nil {
		s.opts.OnRecord(rec)
	}
}

func (s *Scanner) addError(path string, err error) {
	s.errCount.Add(1)
	s.log.Warn("skipping file", "path", path, "error", err)

	s.errorsMu.Lock()
	s.errors = append(s.errors, types.ScanError{Path: path, Error: err.Error()})
	s.errorsMu.Unlock()
}

// reportProgress calls OnProgress at most every 100ms.
func (s *Scanner) reportProgress() {
	if s.opts.OnProgress == nil {
		return
	}
	now := time.Now().UnixMilli()
	last := s.lastProgress.Load()
	if now-last < 100 || !s.lastProgress.CompareAndSwap(last, now) {
		return
	}
	current, _ := s.currentPath.Load().(string)
	s.opts.OnProgress(Progress{
		FilesSeen:   s.filesSeen.Load(),
		FilesHashed: s.filesHashed.Load(),
		BytesHashed: s.bytesHashed.Load(),
		Errors:      s.errCount.Load(),
		CurrentPath: current,
	})
}

// resolveRoot returns the canonical root and verifies it is a directory.
func resolveRoot(root string) (string, error) {
	resolved := Canonical(root)
	info, err := os.Stat(resolved)
	if err != nil {
		return "", types.Wrap(types.ErrConfiguration, "scan root", root, err)
	}
	if !info.IsDir() {
		return "", types.Wrap(types.ErrConfiguration, "scan root", root, errors.New("not a directory"))
	}
	return resolved, nil
}
