package pipeline

import (
	"context"
	"fmt"
	"os"
)

// FetchRequest tells a Fetcher what to fetch and which directory the Original artifact must be written to.
type FetchRequest struct {
	Locator string
	Kind    MediaKind
	Dir     string
}

// Fetcher produces the Original artifact for a source locator. Errors should wrap ErrInvalidLocator or
// ErrSourceUnavailable where applicable. A Fetcher that fails must not leave a partial file behind.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (Artifact, error)
}

// Converter re-encodes an artifact into a smaller one of the next generation (see Artifact.Derive). A Converter that
// fails must not leave a partial output file behind; the input is left untouched either way.
type Converter interface {
	Convert(ctx context.Context, in Artifact, onProgress ProgressFunc) (Artifact, error)
}

// Deliverer transmits an artifact to its remote channel. Errors should wrap ErrChannelRejected or
// ErrTransportFailure.
type Deliverer interface {
	Deliver(ctx context.Context, artifact Artifact) error
}

type SizeProbe interface {
	SizeOf(artifact Artifact) (int64, error)
}

// FileSizeProbe reads artifact sizes from the filesystem.
type FileSizeProbe struct{}

func (FileSizeProbe) SizeOf(artifact Artifact) (int64, error) {
	info, err := os.Stat(artifact.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to probe size: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("failed to probe size: %s is not a regular file", artifact.Path)
	}
	return info.Size(), nil
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (Artifact, error)

func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (Artifact, error) {
	return f(ctx, req, onProgress)
}

// ConverterFunc adapts a function to a Converter.
type ConverterFunc func(ctx context.Context, in Artifact, onProgress ProgressFunc) (Artifact, error)

func (f ConverterFunc) Convert(ctx context.Context, in Artifact, onProgress ProgressFunc) (Artifact, error) {
	return f(ctx, in, onProgress)
}

// DelivererFunc adapts a function to a Deliverer.
type DelivererFunc func(ctx context.Context, artifact Artifact) error

func (f DelivererFunc) Deliver(ctx context.Context, artifact Artifact) error {
	return f(ctx, artifact)
}
