// Package pipeline implements the size-bounded fetch, convert and deliver state machine.
//
// A Pipeline is configured once with its collaborators and can then be Run any number of times, including
// concurrently: each Run owns its own Request, artifact chain and sinks, and nothing mutable is shared between runs.
// A single Run is synchronous; every collaborator call blocks until it returns, and every status or progress
// notification is delivered before the Run moves on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

var (
	ErrNoFetcher   = errors.New("no fetcher configured")
	ErrNoConverter = errors.New("no converter configured")
	ErrNoDeliverer = errors.New("no deliverer configured")
)

type Pipeline struct {
	config    Config
	fetcher   Fetcher
	converter Converter
	deliverer Deliverer
	probe     SizeProbe
	remove    func(string) error
	log       *zap.SugaredLogger
}

type Option func(*Pipeline)

// WithSizeProbe replaces the default FileSizeProbe.
func WithSizeProbe(probe SizeProbe) Option {
	return func(p *Pipeline) {
		p.probe = probe
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// New creates a Pipeline. The converter and deliverer may be nil if only Local requests will be run; a Remote
// request then fails with ReasonOther.
func New(config Config, fetcher Fetcher, converter Converter, deliverer Deliverer, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if config.MaxConvertAttempts == 0 {
		config.MaxConvertAttempts = MaxConvertAttempts
	}
	p := &Pipeline{
		config:    config,
		fetcher:   fetcher,
		converter: converter,
		deliverer: deliverer,
		probe:     FileSizeProbe{},
		remove:    removeFile,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pipeline) Config() Config {
	return p.config
}

func (p *Pipeline) logger() *zap.SugaredLogger {
	if p.log != nil {
		return p.log
	}
	return zap.S().Named("pipeline")
}

// Run processes one Request to completion and returns its Outcome. The same Outcome is also sent to status as the
// final (terminal) Status. Either sink may be nil.
//
// ctx is handed to the collaborators; the pipeline itself never abandons a run part way through.
func (p *Pipeline) Run(ctx context.Context, req Request, status StatusSink, progress ProgressSink) Outcome {
	if status == nil {
		status = nopSink{}
	}
	if progress == nil {
		progress = nopSink{}
	}
	log := p.logger().With("request_id", req.ID)
	r := &run{
		p:        p,
		req:      req,
		status:   status,
		progress: progress,
		log:      log,
		state:    stateFetching,
		ledger:   newLedger(p.remove, log),
	}
	return r.execute(ctx)
}

type state int

const (
	stateFetching state = iota
	stateSizeCheck
	stateConverting
	stateDelivering
	stateDone
)

var stateNames = [...]string{"fetching", "size-check", "converting", "delivering", "done"}

func (s state) String() string {
	return stateNames[s]
}

// run is the per-invocation state of a Pipeline.
type run struct {
	p        *Pipeline
	req      Request
	status   StatusSink
	progress ProgressSink
	log      *zap.SugaredLogger

	state    state
	current  Artifact
	attempts int
	ledger   *ledger
	outcome  Outcome
}

func (r *run) execute(ctx context.Context) Outcome {
	r.log.Infow("pipeline started", "locator", r.req.Locator, "kind", r.req.Kind, "destination", r.req.Destination)
	if err := r.req.Validate(); err != nil {
		reason := ReasonOther
		if errors.Is(err, ErrEmptyLocator) {
			reason = ReasonInvalidLocator
		}
		r.finish(failedOutcome(reason, fmt.Errorf("invalid request: %w", err), 0))
		return r.outcome
	}
	for r.state != stateDone {
		r.log.Debugw("entering state", "state", r.state, "attempts", r.attempts)
		switch r.state {
		case stateFetching:
			r.fetch(ctx)
		case stateSizeCheck:
			r.checkSize()
		case stateConverting:
			r.convert(ctx)
		case stateDelivering:
			r.deliver(ctx)
		}
	}
	return r.outcome
}

func (r *run) fetch(ctx context.Context) {
	if r.p.fetcher == nil {
		r.finish(failedOutcome(ReasonOther, ErrNoFetcher, r.attempts))
		return
	}
	r.emit(Status{Kind: StatusFetching})
	dir := r.p.config.dirFor(r.req)
	if r.req.Destination == Remote {
		if err := os.MkdirAll(dir, 0775); err != nil {
			r.finish(failedOutcome(ReasonOther, fmt.Errorf("failed to create run directory: %w", err), r.attempts))
			return
		}
		r.ledger.trackDir(dir)
	}
	stream := newProgressStream(r.progress, r.req.ID, PhaseFetch, 0)
	fetchReq := FetchRequest{
		Locator: r.req.Locator,
		Kind:    r.req.Kind,
		Dir:     dir,
	}
	artifact, err := r.p.fetcher.Fetch(ctx, fetchReq, stream.report)
	if err != nil {
		r.finish(failedOutcome(classifyFetchError(err), fmt.Errorf("fetch failed: %w", err), r.attempts))
		return
	}
	artifact.Kind = Original
	artifact.Media = r.req.Kind
	stream.complete()
	r.log.Infow("fetched artifact", "path", artifact.Path)

	// Local saves are exempt from the size budget and are never cleaned up.
	if r.req.Destination == Local {
		r.finish(savedLocallyOutcome(artifact))
		return
	}
	r.ledger.track(artifact)
	r.current = artifact
	r.state = stateSizeCheck
}

func (r *run) checkSize() {
	size, err := r.p.probe.SizeOf(r.current)
	if err != nil {
		r.finish(failedOutcome(ReasonOther, fmt.Errorf("size check of %s failed: %w", r.current.Kind, err), r.attempts))
		return
	}
	r.current.Size = size
	budget := r.p.config.SizeBudgetBytes
	if size < budget {
		r.state = stateDelivering
		return
	}

	r.log.Infow("artifact over size budget", "kind", r.current.Kind, "size", size, "budget", budget, "attempts", r.attempts)
	r.emit(Status{Kind: StatusOversize, Attempt: r.attempts, Artifact: r.current, Size: size, Budget: budget})
	if r.attempts >= r.p.config.MaxConvertAttempts {
		err := fmt.Errorf("%w: %s artifact is %d bytes, budget is %d bytes", ErrOversizeExceeded, r.current.Kind, size, budget)
		r.finish(failedOutcome(ReasonOversizeExceeded, err, r.attempts))
		return
	}
	r.state = stateConverting
}

func (r *run) convert(ctx context.Context) {
	if r.p.converter == nil {
		r.finish(failedOutcome(ReasonOther, ErrNoConverter, r.attempts))
		return
	}
	r.attempts++
	r.emit(Status{Kind: StatusConverting, Attempt: r.attempts, Artifact: r.current})
	stream := newProgressStream(r.progress, r.req.ID, PhaseConvert, r.attempts)
	next, err := r.p.converter.Convert(ctx, r.current, stream.report)
	if err != nil {
		r.finish(failedOutcome(ReasonConversionFailed, fmt.Errorf("conversion %d failed: %w", r.attempts, err), r.attempts))
		return
	}
	if next.Path == r.current.Path {
		r.finish(failedOutcome(ReasonOther, fmt.Errorf("conversion %d overwrote its input %s", r.attempts, next.Path), r.attempts))
		return
	}
	r.ledger.track(next)
	if expected, _ := r.current.Kind.Next(); next.Kind != expected {
		r.finish(failedOutcome(ReasonOther, fmt.Errorf("conversion %d produced %s artifact, expected %s", r.attempts, next.Kind, expected), r.attempts))
		return
	}
	stream.complete()

	// The new generation exists, so the one it was converted from is no longer needed.
	r.ledger.discard(r.current)
	r.current = next
	r.log.Infow("converted artifact", "kind", next.Kind, "path", next.Path, "attempt", r.attempts)
	r.emit(Status{Kind: StatusConverted, Attempt: r.attempts, Artifact: next})
	r.state = stateSizeCheck
}

func (r *run) deliver(ctx context.Context) {
	if r.p.deliverer == nil {
		r.finish(failedOutcome(ReasonOther, ErrNoDeliverer, r.attempts))
		return
	}
	r.emit(Status{Kind: StatusDelivering, Artifact: r.current})
	if err := r.p.deliverer.Deliver(ctx, r.current); err != nil {
		r.finish(failedOutcome(ReasonDeliveryFailed, fmt.Errorf("delivery of %s failed: %w", r.current.Kind, err), r.attempts))
		return
	}
	r.finish(deliveredOutcome(r.current, r.attempts))
}

// finish removes every artifact still owned by the run, records the outcome and reports it.
func (r *run) finish(outcome Outcome) {
	r.ledger.discardAll()
	outcome.CleanupErr = r.ledger.err()
	r.outcome = outcome
	r.state = stateDone

	kind := StatusFailed
	switch outcome.Kind {
	case Delivered:
		kind = StatusDelivered
		r.log.Infow("pipeline delivered", "path", outcome.Artifact.Path, "attempts", outcome.Attempts)
	case SavedLocally:
		kind = StatusSavedLocally
		r.log.Infow("pipeline saved locally", "path", outcome.Artifact.Path)
	default:
		r.log.Errorw("pipeline failed", "reason", outcome.Reason, "error", outcome.Err, "attempts", outcome.Attempts)
	}
	if outcome.CleanupErr != nil {
		r.log.Warnw("artifact cleanup incomplete", "error", outcome.CleanupErr)
	}
	r.emit(Status{Kind: kind, Attempt: outcome.Attempts, Artifact: outcome.Artifact, Outcome: &outcome})
}

func (r *run) emit(s Status) {
	s.RequestID = r.req.ID
	r.status.OnStatus(s)
}
