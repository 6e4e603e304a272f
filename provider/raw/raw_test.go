package raw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/video-relay"
	"github.com/alanbriolat/video-relay/pipeline"
)

func TestMatch(t *testing.T) {
	assert := assert_.New(t)
	c := NewConfig()

	for _, s := range []string{
		"https://example.com/clip.mp4",
		"http://example.com/a/b/clip.MKV",
		"https://example.com/podcast.mp3?token=abc",
	} {
		_, err := c.Match(s)
		assert.NoError(err, s)
	}

	for _, s := range []string{
		"ftp://example.com/clip.mp4",
		"https://example.com/",
		"https://example.com/page",
		"https://example.com/page.html",
		"https://example.com/...",
	} {
		_, err := c.Match(s)
		assert.Error(err, s)
	}
}

func TestReconKind(t *testing.T) {
	assert := assert_.New(t)
	c := NewConfig()

	video, err := c.Match("https://example.com/clip.mp4")
	require.NoError(t, err)
	_, err = video.Recon(context.Background(), pipeline.Video)
	assert.NoError(err)
	_, err = video.Recon(context.Background(), pipeline.Audio)
	assert.ErrorIs(err, pipeline.ErrInvalidLocator)

	audio, err := c.Match("https://example.com/talk.m4a")
	require.NoError(t, err)
	resolved, err := audio.Recon(context.Background(), pipeline.Audio)
	if assert.NoError(err) {
		assert.Equal(video_relay.SourceInfo{ID: "talk", Title: "talk", Ext: "m4a"}, resolved.Info())
	}
}

func TestDownload(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clip.mp4":
			_, _ = w.Write([]byte("not really a video"))
		case "/gone.mp4":
			w.WriteHeader(http.StatusGone)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	c := NewConfig()
	dir := t.TempDir()
	download := func(locator string) (video_relay.Download, error) {
		source, err := c.Match(locator)
		require.NoError(t, err)
		resolved, err := source.Recon(context.Background(), pipeline.Video)
		require.NoError(t, err)
		d, err := video_relay.NewDownloadBuilder().WithTargetDir(dir).Build()
		require.NoError(t, err)
		return d, resolved.Download(d)
	}

	d, err := download(server.URL + "/clip.mp4")
	if assert.NoError(err) {
		expected := filepath.Join(dir, "clip [clip].mp4")
		assert.Equal([]string{expected}, d.Files())
		data, err := os.ReadFile(expected)
		assert.NoError(err)
		assert.Equal("not really a video", string(data))
	}

	_, err = download(server.URL + "/gone.mp4")
	assert.ErrorIs(err, pipeline.ErrSourceUnavailable)

	_, err = download(server.URL + "/broken.mp4")
	assert.Error(err)
	assert.NotErrorIs(err, pipeline.ErrSourceUnavailable)
}
