package video_relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/video-relay/pipeline"
)

func TestDownloadSaveStream(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()
	var reports [][2]int64
	d, err := NewDownloadBuilder().
		WithTargetDir(dir).
		WithProgressCallback(func(downloaded, expected int64) {
			reports = append(reports, [2]int64{downloaded, expected})
		}).
		Build()
	require.NoError(t, err)

	d.AddExpectedBytes(11)
	assert.NoError(d.SaveStream("a/b.txt", strings.NewReader("hello world")))
	expected := filepath.Join(dir, "a_b.txt")
	assert.Equal([]string{expected}, d.Files())
	data, err := os.ReadFile(expected)
	assert.NoError(err)
	assert.Equal("hello world", string(data))
	downloaded, total := d.Progress()
	assert.Equal(int64(11), downloaded)
	assert.Equal(int64(11), total)
	assert.Equal([2]int64{11, 11}, reports[len(reports)-1])

	assert.Error(d.SaveStream("..", strings.NewReader("x")))

	assert.NoError(d.Discard())
	assert.Empty(d.Files())
	assert.NoFileExists(expected)
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, errors.New("connection reset")
	}
	r.n--
	p[0] = 'x'
	return 1, nil
}

func TestDownloadSaveStreamFailure(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()
	d, err := NewDownloadBuilder().WithTargetDir(dir).Build()
	require.NoError(t, err)

	assert.Error(d.SaveStream("partial.mp4", &failingReader{n: 3}))
	assert.NoFileExists(filepath.Join(dir, "partial.mp4"))
	assert.Empty(d.Files())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, err = NewDownloadBuilder().WithContext(ctx).WithTargetDir(dir).Build()
	require.NoError(t, err)
	err = d.SaveStream("cancelled.mp4", strings.NewReader("data"))
	assert.ErrorIs(err, context.Canceled)
	assert.NoFileExists(filepath.Join(dir, "cancelled.mp4"))
}

func TestDownloadSaveStreamKeepsExistingFiles(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()
	existing := filepath.Join(dir, "clip [abc].mp4")
	require.NoError(t, os.WriteFile(existing, []byte("earlier save"), 0644))

	d, err := NewDownloadBuilder().WithTargetDir(dir).Build()
	require.NoError(t, err)
	assert.NoError(d.SaveStream("clip [abc].mp4", strings.NewReader("new")))
	assert.NoError(d.SaveStream("clip [abc].mp4", strings.NewReader("newer")))
	assert.Equal([]string{
		filepath.Join(dir, "clip [abc] (1).mp4"),
		filepath.Join(dir, "clip [abc] (2).mp4"),
	}, d.Files())

	// A failed save removes only its own file.
	assert.Error(d.SaveStream("clip [abc].mp4", &failingReader{n: 2}))
	assert.NoFileExists(filepath.Join(dir, "clip [abc] (3).mp4"))
	assert.NoError(d.Discard())

	data, err := os.ReadFile(existing)
	assert.NoError(err)
	assert.Equal("earlier save", string(data))
	assert.ElementsMatch([]string{"clip [abc].mp4"}, listNames(t, dir))
}

func listNames(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownloadSaveURL(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Length", "5")
			_, _ = w.Write([]byte("12345"))
		case "/missing":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	d, err := NewDownloadBuilder().WithTargetDir(dir).WithHTTPClient(server.Client()).Build()
	require.NoError(t, err)

	assert.NoError(d.SaveURL("ok.bin", server.URL+"/ok"))
	downloaded, expected := d.Progress()
	assert.Equal(int64(5), downloaded)
	assert.Equal(int64(5), expected)

	err = d.SaveURL("missing.bin", server.URL+"/missing")
	assert.ErrorIs(err, pipeline.ErrSourceUnavailable)
	err = d.SaveURL("forbidden.bin", server.URL+"/forbidden")
	assert.Error(err)
	assert.NotErrorIs(err, pipeline.ErrSourceUnavailable)
	assert.Equal([]string{filepath.Join(dir, "ok.bin")}, d.Files())
}

func TestDownloadTargetName(t *testing.T) {
	assert := assert_.New(t)
	d, err := NewDownloadBuilder().WithTargetDir(t.TempDir()).Build()
	require.NoError(t, err)

	name, err := d.TargetName(SourceInfo{ID: "abc", Title: "AC/DC: Live", Ext: "mp4"})
	assert.NoError(err)
	assert.Equal("AC_DC_ Live [abc].mp4", name)

	tmpl := template.Must(template.New("t").Option("missingkey=error").Parse("{{.Missing}}"))
	d, err = NewDownloadBuilder().WithTargetDir(t.TempDir()).WithFileTemplate(tmpl).Build()
	require.NoError(t, err)
	_, err = d.TargetName(SourceInfo{})
	assert.Error(err)
}
