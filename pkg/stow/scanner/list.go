package scanner

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// List returns every regular, non-excluded file under root in sorted order,
// without hashing. Unreadable entries are returned as errors alongside.
func List(ctx context.Context, root string, exclude *Excluder) ([]string, []types.ScanError, error) {
	resolved, err := resolveRoot(root)
	if err != nil {
		return nil, nil, err
	}

	var (
		mu    sync.Mutex
		files []string
		errs  []types.ScanError
	)

	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, resolved, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fastwalk.ErrSkipFiles
		}
		if err != nil {
			mu.Lock()
			errs = append(errs, types.ScanError{Path: path, Error: err.Error()})
			mu.Unlock()
			return nil
		}
		if path != resolved && exclude.Match(path) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			mu.Lock()
			files = append(files, path)
			mu.Unlock()
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		return nil, nil, types.Wrap(types.ErrIO, "walk", resolved, walkErr)
	}

	sort.Strings(files)
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return files, errs, nil
}
