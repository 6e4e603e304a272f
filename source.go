package video_relay

import (
	"context"

	"github.com/alanbriolat/video-relay/pipeline"
)

type SourceInfo struct {
	ID    string
	Title string
	// Ext is the file extension of the media that will be downloaded, without a leading dot.
	Ext string
}

type Source interface {
	// URL should return the canonical URL for this source. It is assumed that the Provider.Match that created the
	// Source would successfully match this canonical URL.
	URL() string
	// Recon should fetch enough information to download media of the requested kind. Errors should wrap
	// pipeline.ErrInvalidLocator if the source can never provide that kind, or pipeline.ErrSourceUnavailable if it
	// can't right now.
	Recon(ctx context.Context, kind pipeline.MediaKind) (ResolvedSource, error)
}

type ResolvedSource interface {
	Info() SourceInfo
	// Download should save exactly one file through the Download.
	Download(d Download) error
}
