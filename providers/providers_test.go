package providers

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/video-relay"
)

func TestDefaultProviders(t *testing.T) {
	assert := assert_.New(t)
	r := &video_relay.DefaultProviderRegistry
	assert.Equal([]string{"youtube", "raw", "page"}, r.List())

	for locator, expected := range map[string]string{
		"https://youtu.be/dQw4w9WgXcQ":        "youtube",
		"https://example.com/clip.mp4":        "raw",
		"https://example.com/article/12345":   "page",
		"https://example.com/podcast/ep1.mp3": "raw",
	} {
		match, err := r.Match(locator)
		if assert.NoError(err, locator) {
			assert.Equal(expected, match.ProviderName, locator)
		}
	}

	_, err := r.Match("not a locator")
	assert.ErrorIs(err, video_relay.ErrNoMatch)
}
