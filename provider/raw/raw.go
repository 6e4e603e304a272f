package raw

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/alanbriolat/video-relay"
	"github.com/alanbriolat/video-relay/generic"
	"github.com/alanbriolat/video-relay/pipeline"
	"github.com/alanbriolat/video-relay/util"
)

type Config struct {
	Protocols       generic.Set[string]
	VideoExtensions generic.Set[string]
	AudioExtensions generic.Set[string]
}

func NewConfig() Config {
	return Config{
		Protocols: generic.NewSet(
			"http",
			"https",
		),
		VideoExtensions: generic.NewSet(
			"flv",
			"m4v",
			"mkv",
			"mov",
			"mp4",
			"webm",
		),
		AudioExtensions: generic.NewSet(
			"aac",
			"flac",
			"m4a",
			"mp3",
			"oga",
			"ogg",
			"opus",
			"wav",
		),
	}
}

func (c *Config) Match(s string) (video_relay.Source, error) {
	// Expect string to be a URL
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	// Check that scheme/protocol is valid
	if !c.Protocols.Contains(parsedURL.Scheme) {
		return nil, fmt.Errorf("unknown URL scheme %v", parsedURL.Scheme)
	}
	// Attempt to extract filename and extension
	filename, err := util.FilenameFromURL(parsedURL)
	if err != nil {
		return nil, err
	}
	extension := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if extension == "" {
		return nil, fmt.Errorf("no file extension found")
	}
	var kind pipeline.MediaKind
	switch {
	case c.VideoExtensions.Contains(extension):
		kind = pipeline.Video
	case c.AudioExtensions.Contains(extension):
		kind = pipeline.Audio
	default:
		return nil, fmt.Errorf("unknown file extension %v", extension)
	}
	res := source{
		url:       s,
		filename:  filename,
		extension: extension,
		kind:      kind,
	}
	return &res, nil
}

func (c Config) Provider() video_relay.Provider {
	return video_relay.Provider{
		Name:  "raw",
		Match: c.Match,
	}
}

type source struct {
	url       string
	filename  string
	extension string
	kind      pipeline.MediaKind
}

func (s *source) URL() string {
	return s.url
}

func (s *source) String() string {
	return s.URL()
}

// Recon does no network access; the file's kind is known from its extension, so asking for the other kind is a
// locator error.
func (s *source) Recon(ctx context.Context, kind pipeline.MediaKind) (video_relay.ResolvedSource, error) {
	if kind != s.kind {
		return nil, fmt.Errorf("%w: %v is a %v file, not %v", pipeline.ErrInvalidLocator, s.filename, s.kind, kind)
	}
	return s, nil
}

func (s *source) Info() video_relay.SourceInfo {
	return video_relay.SourceInfo{
		ID:    strings.TrimSuffix(s.filename, path.Ext(s.filename)),
		Title: strings.TrimSuffix(s.filename, path.Ext(s.filename)),
		Ext:   s.extension,
	}
}

func (s *source) Download(d video_relay.Download) error {
	filename, err := d.TargetName(s.Info())
	if err != nil {
		return err
	}
	return d.SaveURL(filename, s.url)
}

func init() {
	video_relay.DefaultProviderRegistry.MustAdd(
		NewConfig().Provider().WithPriority(video_relay.PriorityLowest - 1),
	)
}
