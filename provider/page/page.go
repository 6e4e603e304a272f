// Package page finds media embedded in ordinary web pages, through OpenGraph meta tags or HTML5 media elements.
package page

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alanbriolat/video-relay"
	"github.com/alanbriolat/video-relay/generic"
	"github.com/alanbriolat/video-relay/pipeline"
)

type Config struct {
	Protocols generic.Set[string]
	Client    *http.Client
}

func NewConfig() Config {
	return Config{
		Protocols: generic.NewSet("http", "https"),
		Client:    http.DefaultClient,
	}
}

func (c *Config) Match(s string) (video_relay.Source, error) {
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if !c.Protocols.Contains(parsedURL.Scheme) {
		return nil, fmt.Errorf("unknown URL scheme %v", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return &source{url: parsedURL, client: c.Client}, nil
}

func (c Config) Provider() video_relay.Provider {
	return video_relay.Provider{
		Name:  "page",
		Match: c.Match,
	}
}

type source struct {
	url    *url.URL
	client *http.Client
}

func (s *source) URL() string {
	return s.url.String()
}

func (s *source) String() string {
	return s.URL()
}

func (s *source) Recon(ctx context.Context, kind pipeline.MediaKind) (video_relay.ResolvedSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", pipeline.ErrSourceUnavailable, s.URL(), resp.Status)
	}
	media, err := parsePage(resp.Body, s.url, kind)
	if err != nil {
		return nil, err
	}
	return media, nil
}

type resolvedSource struct {
	pageURL  *url.URL
	mediaURL *url.URL
	title    string
	ext      string
}

func (s *resolvedSource) Info() video_relay.SourceInfo {
	return video_relay.SourceInfo{
		ID:    s.pageURL.Host + s.pageURL.EscapedPath(),
		Title: s.title,
		Ext:   s.ext,
	}
}

func (s *resolvedSource) Download(d video_relay.Download) error {
	filename, err := d.TargetName(s.Info())
	if err != nil {
		return err
	}
	return d.SaveURL(filename, s.mediaURL.String())
}

func (s *resolvedSource) String() string {
	return fmt.Sprintf("%s (%s)", s.title, s.mediaURL)
}

// Selectors tried in order for each kind, with the attribute holding the media URL.
var candidates = map[pipeline.MediaKind][]struct{ selector, attr string }{
	pipeline.Video: {
		{`meta[property="og:video:secure_url"]`, "content"},
		{`meta[property="og:video:url"]`, "content"},
		{`meta[property="og:video"]`, "content"},
		{`video source[src]`, "src"},
		{`video[src]`, "src"},
	},
	pipeline.Audio: {
		{`meta[property="og:audio:secure_url"]`, "content"},
		{`meta[property="og:audio:url"]`, "content"},
		{`meta[property="og:audio"]`, "content"},
		{`audio source[src]`, "src"},
		{`audio[src]`, "src"},
	},
}

var defaultExt = map[pipeline.MediaKind]string{
	pipeline.Video: "mp4",
	pipeline.Audio: "m4a",
}

func parsePage(r io.Reader, pageURL *url.URL, kind pipeline.MediaKind) (*resolvedSource, error) {
	selectors, ok := candidates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownMediaKind, kind)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var mediaURL *url.URL
	for _, c := range selectors {
		doc.Find(c.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			value, _ := sel.Attr(c.attr)
			value = strings.TrimSpace(value)
			if value == "" {
				return true
			}
			ref, err := url.Parse(value)
			if err != nil {
				return true
			}
			resolved := pageURL.ResolveReference(ref)
			if resolved.Scheme != "http" && resolved.Scheme != "https" {
				return true
			}
			mediaURL = resolved
			return false
		})
		if mediaURL != nil {
			break
		}
	}
	if mediaURL == nil {
		return nil, fmt.Errorf("%w: no %v found on %v", pipeline.ErrSourceUnavailable, kind, pageURL)
	}

	title, _ := doc.Find(`meta[property="og:title"]`).First().Attr("content")
	if title = strings.TrimSpace(title); title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = pageURL.Host
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(mediaURL.Path), "."))
	if ext == "" {
		ext = defaultExt[kind]
	}

	return &resolvedSource{
		pageURL:  pageURL,
		mediaURL: mediaURL,
		title:    title,
		ext:      ext,
	}, nil
}

func init() {
	video_relay.DefaultProviderRegistry.MustAdd(
		NewConfig().Provider().WithPriority(video_relay.PriorityLowest),
	)
}
