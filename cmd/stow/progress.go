package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

var (
	stderr = os.Stderr

	progressMu     sync.Mutex
	progressActive bool
)

// progressPrinter redraws one status line on stderr while a tree is hashed.
func progressPrinter() func(scanner.Progress) {
	return func(p scanner.Progress) {
		progressMu.Lock()
		defer progressMu.Unlock()
		progressActive = true
		fmt.Fprintf(stderr, "\r\033[K%d files, %s hashed", p.FilesHashed, types.FormatSize(p.BytesHashed))
	}
}

// clearProgress erases the status line if one was drawn.
func clearProgress() {
	progressMu.Lock()
	defer progressMu.Unlock()
	if progressActive {
		fmt.Fprint(stderr, "\r\033[K")
		progressActive = false
	}
}
