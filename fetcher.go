package video_relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/template"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-relay/pipeline"
)

// Fetcher fetches media through the providers of a ProviderRegistry.
type Fetcher struct {
	Registry     *ProviderRegistry
	FileTemplate *template.Template
	HTTPClient   *http.Client
	// Provider, if set, is the only provider tried for each locator.
	Provider string
}

// NewFetcher creates a Fetcher over the registry, naming files with the default template.
func NewFetcher(registry *ProviderRegistry) *Fetcher {
	return &Fetcher{Registry: registry, FileTemplate: DefaultTargetFileTemplate}
}

func (f *Fetcher) Fetch(ctx context.Context, req pipeline.FetchRequest, onProgress pipeline.ProgressFunc) (pipeline.Artifact, error) {
	log := Logger(ctx).Sugar().Named("fetcher").With("locator", req.Locator, "kind", req.Kind)

	match, err := f.match(req.Locator)
	if err != nil {
		return pipeline.Artifact{}, fmt.Errorf("%w: %w", pipeline.ErrInvalidLocator, err)
	}
	log = log.With("provider", match.ProviderName)
	log.Debug("matched locator")

	resolved, err := match.Source.Recon(ctx, req.Kind)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidLocator) || errors.Is(err, pipeline.ErrSourceUnavailable) {
			return pipeline.Artifact{}, err
		}
		return pipeline.Artifact{}, fmt.Errorf("recon failed: %w", err)
	}
	info := resolved.Info()
	log.Infow("resolved source", "id", info.ID, "title", info.Title)

	builder := NewDownloadBuilder().
		WithContext(WithLogger(ctx, log.Desugar())).
		WithTargetDir(req.Dir).
		WithFileTemplate(f.FileTemplate).
		WithHTTPClient(f.HTTPClient)
	if onProgress != nil {
		builder = builder.WithProgressCallback(onProgress)
	}
	d, err := builder.Build()
	if err != nil {
		return pipeline.Artifact{}, err
	}
	if err := resolved.Download(d); err != nil {
		discard(log, d)
		return pipeline.Artifact{}, err
	}
	files := d.Files()
	if len(files) != 1 {
		discard(log, d)
		return pipeline.Artifact{}, fmt.Errorf("%v saved %d files, expected 1", match.ProviderName, len(files))
	}
	downloaded, _ := d.Progress()
	return pipeline.Artifact{Path: files[0], Kind: pipeline.Original, Media: req.Kind, Size: downloaded}, nil
}

func (f *Fetcher) match(locator string) (*Match, error) {
	if f.Provider != "" {
		return f.Registry.MatchWith(f.Provider, locator)
	}
	return f.Registry.Match(locator)
}

func discard(log *zap.SugaredLogger, d Download) {
	if err := d.Discard(); err != nil {
		log.Warnw("failed to discard partial download", "error", err)
	}
}
