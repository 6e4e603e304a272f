// Package convert re-encodes artifacts into smaller ones with ffmpeg.
package convert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/alanbriolat/video-relay/pipeline"
)

const (
	DefaultVideoScaleFactor = 0.5
	DefaultAudioBitrate     = "50k"

	VideoCodec   = "libx264"
	VideoPreset  = "medium"
	VideoCRF     = "23"
	AudioCodec   = "aac"
	FastStart    = "+faststart"
	ResizeSuffix = "_resized"

	progressTarget     = "pipe:2"
	progressTimePrefix = "out_time_us="
	stderrTailLines    = 10
)

// Output containers; the codecs above always fit these.
var outputExt = map[pipeline.MediaKind]string{
	pipeline.Audio: ".m4a",
	pipeline.Video: ".mp4",
}

type Config struct {
	FFmpegPath  string
	FFprobePath string
	// Both video dimensions are multiplied by this on each conversion.
	VideoScaleFactor float64
	// ffmpeg bitrate string for re-encoded audio, in audio-only and video artifacts alike.
	AudioBitrate string
	// Passed as -threads when positive.
	Threads int
}

var DefaultConfig = Config{
	FFmpegPath:       "ffmpeg",
	FFprobePath:      "ffprobe",
	VideoScaleFactor: DefaultVideoScaleFactor,
	AudioBitrate:     DefaultAudioBitrate,
}

func (c Config) Validate() error {
	if c.FFmpegPath == "" || c.FFprobePath == "" {
		return fmt.Errorf("ffmpeg and ffprobe paths are required")
	}
	if !(c.VideoScaleFactor > 0 && c.VideoScaleFactor < 1) {
		return fmt.Errorf("video scale factor must be between 0 and 1, got %v", c.VideoScaleFactor)
	}
	if strings.TrimSpace(c.AudioBitrate) == "" {
		return fmt.Errorf("audio bitrate is required")
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative")
	}
	return nil
}

// Converter implements pipeline.Converter by running ffmpeg.
type Converter struct {
	config Config
	log    *zap.SugaredLogger
}

func New(config Config) (*Converter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid converter config: %w", err)
	}
	return &Converter{config: config, log: zap.S().Named("convert")}, nil
}

// OutputPath is where the conversion of in is written: next to it, with ResizeSuffix added to the name and the
// extension of the output container.
func OutputPath(in pipeline.Artifact) string {
	ext := filepath.Ext(in.Path)
	stem := strings.TrimSuffix(in.Path, ext)
	if out, ok := outputExt[in.Media]; ok {
		ext = out
	}
	return stem + ResizeSuffix + ext
}

func (c *Converter) Convert(ctx context.Context, in pipeline.Artifact, onProgress pipeline.ProgressFunc) (pipeline.Artifact, error) {
	out, err := in.Derive(OutputPath(in))
	if err != nil {
		return pipeline.Artifact{}, err
	}
	args, err := c.BuildArgs(in, out.Path)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	log := c.log.With("input", in.Path, "output", out.Path, "kind", out.Kind)

	durationUs, err := c.durationMicros(ctx, in.Path)
	if err != nil {
		return pipeline.Artifact{}, err
	}

	log.Infow("starting conversion", "duration_us", durationUs)
	if err := c.run(ctx, args, durationUs, onProgress); err != nil {
		if rmErr := os.Remove(out.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warnw("failed to remove partial output", "error", rmErr)
		}
		return pipeline.Artifact{}, err
	}

	info, err := os.Stat(out.Path)
	if err != nil {
		return pipeline.Artifact{}, fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	out.Size = info.Size()
	log.Infow("conversion finished", "size", out.Size)
	return out, nil
}

// BuildArgs builds the ffmpeg arguments that convert in to outputPath.
func (c *Converter) BuildArgs(in pipeline.Artifact, outputPath string) ([]string, error) {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", in.Path,
	}
	switch in.Media {
	case pipeline.Audio:
		args = append(args,
			"-vn",
			"-c:a", AudioCodec,
			"-b:a", c.config.AudioBitrate,
		)
	case pipeline.Video:
		args = append(args,
			"-vf", c.ScaleFilter(),
			"-c:v", VideoCodec,
			"-preset", VideoPreset,
			"-crf", VideoCRF,
			"-c:a", AudioCodec,
			"-b:a", c.config.AudioBitrate,
			"-movflags", FastStart,
		)
	default:
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownMediaKind, in.Media)
	}
	if c.config.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(c.config.Threads))
	}
	return append(args, "-progress", progressTarget, "-nostats", outputPath), nil
}

// ScaleFilter scales both dimensions by the configured factor, rounded down to even numbers as libx264 requires.
func (c *Converter) ScaleFilter() string {
	f := strconv.FormatFloat(c.config.VideoScaleFactor, 'f', -1, 64)
	return fmt.Sprintf("scale=trunc(iw*%s/2)*2:trunc(ih*%s/2)*2", f, f)
}

func (c *Converter) durationMicros(ctx context.Context, path string) (int64, error) {
	cmd := exec.CommandContext(ctx, c.config.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}
	return parseDuration(string(output))
}

func parseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "N/A" {
		// Streams without a known duration still convert, just without progress.
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return int64(seconds * 1e6), nil
}

func (c *Converter) run(ctx context.Context, args []string, durationUs int64, onProgress pipeline.ProgressFunc) error {
	cmd := exec.CommandContext(ctx, c.config.FFmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	tail := scanProgress(stderr, durationUs, onProgress)
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		if len(tail) > 0 {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.Join(tail, "; "))
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// scanProgress reads ffmpeg's stderr until EOF, reporting out_time_us against durationUs. Lines that are not
// progress key=value pairs are kept (the last few of them) for error reporting.
func scanProgress(r io.Reader, durationUs int64, onProgress pipeline.ProgressFunc) []string {
	var tail []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, progressTimePrefix) {
			us, err := strconv.ParseInt(strings.TrimPrefix(line, progressTimePrefix), 10, 64)
			if err != nil || durationUs <= 0 || onProgress == nil {
				continue
			}
			if us > durationUs {
				us = durationUs
			}
			onProgress(us, durationUs)
			continue
		}
		if isProgressLine(line) {
			continue
		}
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}
	return tail
}

func isProgressLine(line string) bool {
	key, _, ok := strings.Cut(line, "=")
	return ok && key != "" && !strings.ContainsAny(key, " :")
}
