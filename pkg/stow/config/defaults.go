// Package config provides configuration management for stow.
package config

import "time"

// Default configuration values for stow.
const (
	// DefaultInbox is the staging directory routed by "stow route".
	DefaultInbox = "~/Inbox"

	// DefaultLibrary is the root under which category folders live.
	DefaultLibrary = "~"

	// DefaultDuplicatesDir holds exact duplicates, relative to the Inbox.
	DefaultDuplicatesDir = "Duplicates"

	// DefaultQuarantineDir holds quarantined files, relative to the compared root.
	DefaultQuarantineDir = "Quarantine"

	// DefaultWorkers bounds hashing and routing concurrency.
	DefaultWorkers = 32

	// DefaultStabilitySamples is how many equal size samples make a file ready.
	DefaultStabilitySamples = 3

	// DefaultStabilityInterval is the delay between size samples.
	DefaultStabilityInterval = time.Second

	// DefaultInventoryName is the ledger file name used when none is configured.
	DefaultInventoryName = "inventory.csv"

	// DefaultArtifactName is the comparison artifact written by compare.
	DefaultArtifactName = "quarantine_matches.csv"

	// DefaultRetentionDays is how long history manifests are kept.
	DefaultRetentionDays = 30

	// DefaultLogMaxSize triggers log rotation.
	DefaultLogMaxSize = "10MB"
)

// DefaultExclusions are never scanned or routed.
var DefaultExclusions = []string{
	".DS_Store",
	"._*",
	"Thumbs.db",
	"*.part",
	"*.crdownload",
	".git",
}

// DefaultComponents are the per-component log levels.
var DefaultComponents = map[string]string{
	"router":    "info",
	"scanner":   "info",
	"inventory": "info",
	"mover":     "info",
	"watcher":   "warn",
	"workflow":  "info",
	"cli":       "info",
}
