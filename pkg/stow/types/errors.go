package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error markers. Callers classify failures with errors.Is.
var (
	// ErrIO marks a per-file read, write or move failure. Recoverable: skip the file.
	ErrIO = errors.New("io failure")

	// ErrHash marks a digest computation failure. It is an ErrIO.
	ErrHash = fmt.Errorf("%w: hash failure", ErrIO)

	// ErrInvariant marks an aborted inventory merge.
	ErrInvariant = errors.New("invariant violation")

	// ErrExhaustedRenames marks a collision that found no free "name (n)" slot.
	ErrExhaustedRenames = errors.New("exhausted rename attempts")

	// ErrConfiguration marks a startup problem that is fatal to the whole run.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidDigest marks a digest that is not 64 lowercase hex characters.
	ErrInvalidDigest = errors.New("invalid digest")

	// ErrInvalidRecord marks an inventory record that cannot be stored.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrDestinationExists is returned instead of overwriting an existing file.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrNoLock is returned when a workflow is started without holding the run lock.
	ErrNoLock = errors.New("run lock not held")
)

// Wrap tags err with marker and the operation and path it happened on.
// The result matches both marker and err with errors.Is.
func Wrap(marker error, op, path string, err error) error {
	if marker == nil {
		marker = ErrIO
	}
	detail := buildDetail(op, path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(op, path string) string {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if path != "" {
		parts = append(parts, path)
	}
	if len(parts) == 0 {
		return "unknown operation"
	}
	return strings.Join(parts, " ")
}
