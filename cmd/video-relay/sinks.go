package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/video-relay/pipeline"
)

// statusLabel gives the user-facing message for a status.
func statusLabel(s pipeline.Status) string {
	switch s.Kind {
	case pipeline.StatusFetching:
		return "Downloading..."
	case pipeline.StatusOversize:
		return fmt.Sprintf("File too large (%.1f MiB, limit %.1f MiB)", mib(s.Size), mib(s.Budget))
	case pipeline.StatusConverting:
		return fmt.Sprintf("Resizing (attempt %d of %d)...", s.Attempt, pipeline.MaxConvertAttempts)
	case pipeline.StatusConverted:
		return "Conversion finished"
	case pipeline.StatusDelivering:
		return "Sending..."
	case pipeline.StatusDelivered:
		return "Sent"
	case pipeline.StatusSavedLocally:
		return "Saved"
	case pipeline.StatusFailed:
		if s.Outcome != nil {
			return failureLabel(s.Outcome.Reason)
		}
		return "Failed"
	default:
		return string(s.Kind)
	}
}

func failureLabel(reason pipeline.FailureReason) string {
	switch reason {
	case pipeline.ReasonInvalidLocator:
		return "Invalid URL"
	case pipeline.ReasonSourceUnavailable:
		return "Video unavailable"
	case pipeline.ReasonOversizeExceeded:
		return "File still too large after resizing"
	case pipeline.ReasonConversionFailed:
		return "Conversion failed"
	case pipeline.ReasonDeliveryFailed:
		return "Sending failed"
	default:
		return "Failed"
	}
}

func mib(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

// statusLogger logs every status with the request it belongs to. It is safe for concurrent use.
type statusLogger struct {
	log *zap.SugaredLogger
}

func (l statusLogger) OnStatus(s pipeline.Status) {
	log := l.log.With("request_id", s.RequestID, "status", s.Kind)
	if s.Artifact.Path != "" {
		log = log.With("artifact", s.Artifact.Path)
	}
	switch {
	case s.Kind == pipeline.StatusFailed && s.Outcome != nil:
		log.Errorw(statusLabel(s), "error", s.Outcome.Err)
	case s.Outcome != nil && s.Outcome.CleanupErr != nil:
		log.Warnw(statusLabel(s), "cleanup_error", s.Outcome.CleanupErr)
	default:
		log.Info(statusLabel(s))
	}
}

// progressBars draws one bar per progress stream, replacing it when a new stream starts.
type progressBars struct {
	mu      sync.Mutex
	w       io.Writer
	bar     *progressbar.ProgressBar
	phase   pipeline.Phase
	attempt int
	percent int
}

func newProgressBars(w io.Writer) *progressBars {
	return &progressBars{w: w}
}

func (p *progressBars) OnProgress(pr pipeline.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil || pr.Phase != p.phase || pr.Attempt != p.attempt {
		p.finishLocked()
		p.phase, p.attempt = pr.Phase, pr.Attempt
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(barDescription(pr)),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(p.w) }),
		)
	}
	p.percent = int(pr.Percent)
	_ = p.bar.Set(p.percent)
}

func barDescription(pr pipeline.Progress) string {
	if pr.Phase == pipeline.PhaseConvert {
		return fmt.Sprintf("converting (%d/%d)", pr.Attempt, pipeline.MaxConvertAttempts)
	}
	return "downloading"
}

// Finish ends the line of any bar left incomplete, e.g. by a failed fetch.
func (p *progressBars) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *progressBars) finishLocked() {
	if p.bar != nil && p.percent < 100 {
		_, _ = fmt.Fprintln(p.w)
	}
	p.bar = nil
	p.percent = 0
}
