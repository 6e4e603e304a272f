package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/alanbriolat/video-relay"
	"github.com/alanbriolat/video-relay/pipeline"
)

type source struct {
	videoID string
}

func (s *source) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", s.videoID)
}

func (s *source) String() string {
	return s.URL()
}

func (s *source) Recon(ctx context.Context, kind pipeline.MediaKind) (video_relay.ResolvedSource, error) {
	client := youtube.Client{}
	videoDetails, err := client.GetVideoContext(ctx, s.URL())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get video info: %v", pipeline.ErrSourceUnavailable, err)
	}
	format, err := selectFormat(videoDetails.Formats, kind)
	if err != nil {
		return nil, err
	}
	return &resolvedSource{
		source:       *s,
		videoDetails: videoDetails,
		format:       format,
	}, nil
}

// selectFormat picks the best mp4 container format for the media kind: the highest bitrate audio-only format for
// audio, or the highest resolution format carrying both video and audio for video.
func selectFormat(formats youtube.FormatList, kind pipeline.MediaKind) (*youtube.Format, error) {
	var best *youtube.Format
	switch kind {
	case pipeline.Audio:
		for i := range formats {
			f := &formats[i]
			if mimeType(f) != "audio/mp4" {
				continue
			}
			if best == nil || f.Bitrate > best.Bitrate {
				best = f
			}
		}
	case pipeline.Video:
		withAudio := formats.WithAudioChannels()
		for i := range withAudio {
			f := &withAudio[i]
			if mimeType(f) != "video/mp4" {
				continue
			}
			if best == nil || f.Height > best.Height || (f.Height == best.Height && f.Bitrate > best.Bitrate) {
				best = f
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownMediaKind, kind)
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no suitable %v format", pipeline.ErrSourceUnavailable, kind)
	}
	return best, nil
}

func mimeType(f *youtube.Format) string {
	return strings.TrimSpace(strings.SplitN(f.MimeType, ";", 2)[0])
}

// extension maps the format's MIME type to a file extension; audio/mp4 is saved as m4a.
func extension(f *youtube.Format) string {
	switch mt := mimeType(f); mt {
	case "audio/mp4":
		return "m4a"
	default:
		if parts := strings.SplitN(mt, "/", 2); len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
		return "bin"
	}
}

type resolvedSource struct {
	source
	videoDetails *youtube.Video
	format       *youtube.Format
}

func (s *resolvedSource) Info() video_relay.SourceInfo {
	return video_relay.SourceInfo{
		ID:    s.videoDetails.ID,
		Title: s.videoDetails.Title,
		Ext:   extension(s.format),
	}
}

func (s *resolvedSource) Download(d video_relay.Download) error {
	filename, err := d.TargetName(s.Info())
	if err != nil {
		return err
	}
	client := youtube.Client{}
	stream, size, err := client.GetStreamContext(d.Context(), s.videoDetails, s.format)
	if err != nil {
		return fmt.Errorf("%w: failed to get stream: %v", pipeline.ErrSourceUnavailable, err)
	}
	defer stream.Close()
	d.AddExpectedBytes(size)
	return d.SaveStream(filename, stream)
}

func (s *resolvedSource) String() string {
	return fmt.Sprintf("%s [%s]", s.videoDetails.Title, s.videoDetails.ID)
}

func Match(s string) (video_relay.Source, error) {
	if parsedURL, err := url.Parse(s); err != nil {
		return nil, err
	} else if videoID, err := extractVideoID(parsedURL); err != nil {
		return nil, err
	} else {
		return &source{videoID: videoID}, nil
	}
}

func New() video_relay.Provider {
	return video_relay.Provider{Name: "youtube", Match: Match}
}

// Extract video ID from YouTube URL.
//
// Allowed URL formats:
//
//	http(s?)://(www|m)?.youtube.com/(watch|details)?v={VIDEO_ID}
//	http(s?)://(www|m)?.youtube.com/(v|shorts)/{VIDEO_ID}
//	http(s?)://youtu.be/{VIDEO_ID}
func extractVideoID(url *url.URL) (string, error) {
	var id string
	switch url.Hostname() {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		if strings.HasPrefix(url.Path, "/v/") || strings.HasPrefix(url.Path, "/shorts/") {
			id = strings.SplitN(url.Path, "/", 4)[2]
		} else if url.Path == "/watch" || url.Path == "/details" {
			if url.Query().Has("v") {
				id = url.Query().Get("v")
			} else {
				return "", fmt.Errorf("missing ?v= query parameter")
			}
		}
	case "youtu.be":
		id = strings.Trim(url.Path, "/")
	default:
		return "", fmt.Errorf("unrecognised hostname")
	}
	if id == "" {
		return "", fmt.Errorf("could not extract video ID")
	}
	return id, nil
}

func init() {
	video_relay.DefaultProviderRegistry.MustAdd(New())
}
