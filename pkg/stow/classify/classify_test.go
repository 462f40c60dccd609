package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Category
	}{
		{name: "jpeg", filename: "photo.jpg", want: Photo},
		{name: "uppercase extension", filename: "IMG_0001.JPG", want: Photo},
		{name: "mixed case", filename: "song.FlAc", want: Music},
		{name: "video", filename: "clip.mkv", want: Video},
		{name: "document", filename: "report.pdf", want: Document},
		{name: "with directory", filename: "/inbox/sub/report.PDF", want: Document},
		{name: "unmapped", filename: "archive.zip", want: Misc},
		{name: "no extension", filename: "Makefile", want: Misc},
		{name: "dotfile", filename: ".bashrc", want: Misc},
		{name: "dotfile named like extension", filename: ".jpg", want: Misc},
		{name: "trailing dot", filename: "weird.", want: Misc},
		{name: "multiple dots", filename: "backup.2024.mp3", want: Music},
		{name: "empty", filename: "", want: Misc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.filename))
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		input    string
		wantBase string
		wantExt  string
	}{
		{input: "photo.jpg", wantBase: "photo", wantExt: ".jpg"},
		{input: "archive.tar.gz", wantBase: "archive.tar", wantExt: ".gz"},
		{input: "README", wantBase: "README", wantExt: ""},
		{input: ".bashrc", wantBase: ".bashrc", wantExt: ""},
		{input: ".config.yaml", wantBase: ".config", wantExt: ".yaml"},
		{input: "dir/Photo.JPG", wantBase: "Photo", wantExt: ".JPG"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			base, ext := SplitName(tt.input)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range All {
		got, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCategory("PHOTO")
	require.NoError(t, err)
	assert.Equal(t, Photo, got)

	_, err = ParseCategory("archive")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestExtensionTableHasNoOverlap(t *testing.T) {
	seen := make(map[string]Category)
	for cat, exts := range extensionGroups {
		for _, ext := range exts {
			prev, dup := seen[ext]
			assert.Falsef(t, dup, "extension %q in both %s and %s", ext, prev, cat)
			seen[ext] = cat
		}
	}
}

func TestDefaultDirsCoverAllCategories(t *testing.T) {
	for _, c := range All {
		assert.NotEmpty(t, DefaultDirs[c], c.String())
	}
	music := Extensions(Music)
	assert.Contains(t, music, "flac")
	assert.IsNonDecreasing(t, music)
}
