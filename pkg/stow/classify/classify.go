// Package classify maps file names to routing categories by extension.
// Classification is a pure, total function: every name maps to exactly one
// Category, with Misc as the fallback for unmapped or missing extensions.
package classify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category is a routing destination class.
type Category int

const (
	// Misc is the fallback for unmapped and missing extensions.
	Misc Category = iota
	// Photo covers still images.
	Photo
	// Music covers audio files.
	Music
	// Video covers video containers.
	Video
	// Document covers office documents, text and ebooks.
	Document
)

// Category string constants.
const (
	categoryMisc     = "misc"
	categoryPhoto    = "photo"
	categoryMusic    = "music"
	categoryVideo    = "video"
	categoryDocument = "document"
)

// All lists every category in a stable order.
var All = []Category{Photo, Music, Video, Document, Misc}

// String returns the lowercase name used in config keys and output.
func (c Category) String() string {
	switch c {
	case Photo:
		return categoryPhoto
	case Music:
		return categoryMusic
	case Video:
		return categoryVideo
	case Document:
		return categoryDocument
	default:
		return categoryMisc
	}
}

// ErrInvalidCategory indicates that a category string could not be parsed.
var ErrInvalidCategory = errors.New("invalid category")

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case categoryPhoto:
		return Photo, nil
	case categoryMusic:
		return Music, nil
	case categoryVideo:
		return Video, nil
	case categoryDocument:
		return Document, nil
	case categoryMisc:
		return Misc, nil
	default:
		return Misc, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}

// DefaultDirs maps each category to its default folder under the library root.
var DefaultDirs = map[Category]string{
	Photo:    "Pictures",
	Music:    "Music",
	Video:    "Videos",
	Document: "Documents",
	Misc:     "Misc",
}

// extensionGroups lists the extensions (without the dot, lowercase) of each category.
var extensionGroups = map[Category][]string{
	Photo: {
		"jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp", "heic", "heif",
		"raw", "cr2", "cr3", "nef", "arw", "dng", "orf", "rw2", "svg", "ico",
	},
	Music: {
		"mp3", "flac", "wav", "aac", "ogg", "oga", "wma", "m4a", "opus", "aiff",
		"aif", "alac", "ape", "mka",
	},
	Video: {
		"mp4", "mkv", "avi", "mov", "wmv", "flv", "webm", "m4v", "mpeg", "mpg",
		"3gp", "ts", "mts", "m2ts", "vob",
	},
	Document: {
		"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "odp",
		"rtf", "txt", "md", "csv", "epub", "mobi", "pages", "numbers", "key",
	},
}

// extensionTable is the inverted lookup built from extensionGroups.
var extensionTable = buildTable(extensionGroups)

func buildTable(groups map[Category][]string) map[string]Category {
	table := make(map[string]Category)
	for cat, exts := range groups {
		for _, ext := range exts {
			table[ext] = cat
		}
	}
	return table
}

// Classify returns the category for filename. Only the base name matters.
func Classify(filename string) Category {
	ext := Extension(filename)
	if ext == "" {
		return Misc
	}
	if cat, ok := extensionTable[ext]; ok {
		return cat
	}
	return Misc
}

// Extensions returns the sorted extensions mapped to c.
func Extensions(c Category) []string {
	exts := append([]string(nil), extensionGroups[c]...)
	sort.Strings(exts)
	return exts
}

// Extension returns the lowercase extension of name without the dot.
// Names without a dot and dotfiles such as ".bashrc" have no extension.
func Extension(name string) string {
	_, ext := SplitName(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// SplitName splits the base name of name on its last dot. ext keeps the dot and
// its original case. A leading dot with no other dot is part of base.
func SplitName(name string) (base, ext string) {
	name = baseName(name)
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

// baseName strips directory components using both separators so classification
// does not depend on the host OS.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
