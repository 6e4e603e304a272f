package video_relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/hashicorp/go-multierror"

	"github.com/alanbriolat/video-relay/pipeline"
	"github.com/alanbriolat/video-relay/util"
)

// Download is the write side of a fetch: providers save media through it, and it tracks progress and the files
// written.
type Download interface {
	// AddDownloadedBytes increases how many bytes have been successfully downloaded so far.
	AddDownloadedBytes(n int64)

	// AddExpectedBytes increases how many bytes are expected to be downloaded.
	AddExpectedBytes(n int64)

	// Context is the context of this Download; I/O stops when it is done.
	Context() context.Context

	// Discard deletes every file saved by the Download.
	Discard() error

	// Files returns the paths of all files saved so far.
	Files() []string

	// Progress returns the downloaded and expected bytes of the download.
	Progress() (int64, int64)

	// SaveHTTPRequest will execute the http.Request with Context() and then download the resulting stream like
	// SaveStream. 404 and 410 responses give errors wrapping pipeline.ErrSourceUnavailable.
	SaveHTTPRequest(filename string, req *http.Request) error

	// SaveStream will download the stream to the named file, calling AddDownloadedBytes as necessary. On failure the
	// partial file is removed.
	SaveStream(filename string, stream io.Reader) error

	// SaveURL will make a GET request to the URL and then download the resulting stream like SaveStream.
	SaveURL(filename string, url string) error

	// TargetName renders the configured file name template for the source.
	TargetName(info SourceInfo) (string, error)

	// Write will ignore the data but will send the byte count to AddDownloadedBytes. Allows progress tracking using
	// io.MultiWriter (but ensure the Download is the last writer to avoid counting failed writes).
	Write(p []byte) (n int, err error)
}

type download struct {
	ctx              context.Context
	client           *http.Client
	progressCallback func(int64, int64)
	targetDir        string
	fileTemplate     *template.Template
	expectedBytes    int64
	downloadedBytes  int64
	files            []string
}

func (d *download) AddDownloadedBytes(n int64) {
	d.downloadedBytes += n
	if d.progressCallback != nil {
		d.progressCallback(d.Progress())
	}
}

func (d *download) AddExpectedBytes(n int64) {
	if n <= 0 {
		// Unknown length (e.g. no Content-Length), progress can't be computed.
		return
	}
	d.expectedBytes += n
	if d.progressCallback != nil {
		d.progressCallback(d.Progress())
	}
}

func (d *download) Context() context.Context {
	return d.ctx
}

func (d *download) Discard() error {
	var result *multierror.Error
	for _, f := range d.files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	d.files = nil
	return result.ErrorOrNil()
}

func (d *download) Files() []string {
	return append([]string(nil), d.files...)
}

func (d *download) Progress() (int64, int64) {
	return d.downloadedBytes, d.expectedBytes
}

func (d *download) SaveHTTPRequest(filename string, req *http.Request) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	req = req.WithContext(d.Context())
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s returned %s", pipeline.ErrSourceUnavailable, req.URL, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("download failed: %s returned %s", req.URL, resp.Status)
	}
	d.AddExpectedBytes(resp.ContentLength)
	return d.SaveStream(filename, resp.Body)
}

func (d *download) SaveStream(filename string, stream io.Reader) error {
	targetPath, err := d.targetPath(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0775); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	f, targetPath, err := createUnique(targetPath)
	if err != nil {
		return fmt.Errorf("failed to open target file: %w", err)
	}
	_, err = io.Copy(io.MultiWriter(f, d), &readerContext{ctx: d.ctx, r: stream})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(targetPath)
		return fmt.Errorf("failed to save stream: %w", err)
	}
	d.files = append(d.files, targetPath)
	return nil
}

// maxNameSuffix bounds how many " (n)" variants createUnique tries.
const maxNameSuffix = 100

// createUnique creates a new file at path, or at "stem (n).ext" if path is taken. Existing files are never opened.
func createUnique(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := path
	for n := 1; ; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0664)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) || n > maxNameSuffix {
			return nil, "", err
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
}

func (d *download) SaveURL(filename string, url string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return d.SaveHTTPRequest(filename, req)
}

func (d *download) TargetName(info SourceInfo) (string, error) {
	builder := strings.Builder{}
	if err := d.fileTemplate.Execute(&builder, &info); err != nil {
		return "", fmt.Errorf("failed to render file name: %w", err)
	}
	return util.SanitizeFilename(builder.String()), nil
}

func (d *download) Write(p []byte) (n int, err error) {
	n = len(p)
	d.AddDownloadedBytes(int64(n))
	return n, nil
}

// targetPath keeps every file inside targetDir.
func (d *download) targetPath(filename string) (string, error) {
	name := util.SanitizeFilename(filename)
	if name == "" {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	return filepath.Join(d.targetDir, name), nil
}

type DownloadBuilder interface {
	Build() (Download, error)
	WithContext(ctx context.Context) DownloadBuilder
	WithFileTemplate(t *template.Template) DownloadBuilder
	WithHTTPClient(client *http.Client) DownloadBuilder
	WithProgressCallback(f func(downloaded int64, expected int64)) DownloadBuilder
	WithTargetDir(dir string) DownloadBuilder
}

type downloadBuilder struct {
	ctx              context.Context
	client           *http.Client
	fileTemplate     *template.Template
	progressCallback func(int64, int64)
	targetDir        string
}

func NewDownloadBuilder() DownloadBuilder {
	return &downloadBuilder{
		ctx:          context.Background(),
		client:       http.DefaultClient,
		fileTemplate: DefaultTargetFileTemplate,
		targetDir:    ".",
	}
}

func (b *downloadBuilder) Build() (Download, error) {
	if b.targetDir == "" {
		return nil, fmt.Errorf("no target directory")
	}
	if err := os.MkdirAll(b.targetDir, 0775); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}
	d := &download{
		ctx:              b.ctx,
		client:           b.client,
		progressCallback: b.progressCallback,
		targetDir:        b.targetDir,
		fileTemplate:     b.fileTemplate,
	}
	return d, nil
}

func (b *downloadBuilder) WithContext(ctx context.Context) DownloadBuilder {
	b.ctx = ctx
	return b
}

func (b *downloadBuilder) WithFileTemplate(t *template.Template) DownloadBuilder {
	if t != nil {
		b.fileTemplate = t
	}
	return b
}

func (b *downloadBuilder) WithHTTPClient(client *http.Client) DownloadBuilder {
	if client != nil {
		b.client = client
	}
	return b
}

func (b *downloadBuilder) WithProgressCallback(f func(int64, int64)) DownloadBuilder {
	b.progressCallback = f
	return b
}

func (b *downloadBuilder) WithTargetDir(dir string) DownloadBuilder {
	b.targetDir = dir
	return b
}
