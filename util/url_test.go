package util

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestFilenameFromURLString(t *testing.T) {
	assert := assert_.New(t)
	valid := map[string]string{
		"https://example.com/clip.mp4":         "clip.mp4",
		"https://example.com/a/b/clip.mp4?x=1": "clip.mp4",
		"https://example.com/a/b/talk.m4a/":    "talk.m4a",
		"https://example.com/.hidden":          ".hidden",
	}
	for s, expected := range valid {
		name, err := FilenameFromURLString(s)
		if assert.NoError(err, s) {
			assert.Equal(expected, name, s)
		}
	}
	for _, s := range []string{"https://example.com", "https://example.com/", "https://example.com/..", "%zz"} {
		_, err := FilenameFromURLString(s)
		assert.Error(err, s)
	}
	_, err := FilenameFromURL(nil)
	assert.ErrorIs(err, ErrNoFilename)
}

func TestSanitizeFilename(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("AC_DC - Live [abc].mp4", SanitizeFilename("AC/DC - Live [abc].mp4"))
	assert.Equal("what_ 'quoted' _x_.m4a", SanitizeFilename(`what? "quoted" <x>.m4a`))
	assert.Equal("line one", SanitizeFilename("  line\none "))
	assert.Equal("..._._..", SanitizeFilename("..././.."))
	assert.Equal("", SanitizeFilename(".."))
	assert.Equal("", SanitizeFilename("   "))
}
