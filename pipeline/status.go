package pipeline

type Phase string

const (
	PhaseFetch   Phase = "fetch"
	PhaseConvert Phase = "convert"
)

// Progress is a percentage update for one progress stream. Fetch progress has Attempt 0; convert progress has the
// number of the conversion it belongs to. Within a stream Percent is in [0, 100] and never decreases.
type Progress struct {
	RequestID RequestID
	Phase     Phase
	Attempt   int
	Percent   float64
}

type StatusKind string

const (
	StatusFetching     StatusKind = "fetching"
	StatusOversize     StatusKind = "oversize"
	StatusConverting   StatusKind = "converting"
	StatusConverted    StatusKind = "converted"
	StatusDelivering   StatusKind = "delivering"
	StatusDelivered    StatusKind = "delivered"
	StatusSavedLocally StatusKind = "saved-locally"
	StatusFailed       StatusKind = "failed"
)

// IsTerminal returns true for the statuses that carry the invocation's Outcome.
func (k StatusKind) IsTerminal() bool {
	return k == StatusDelivered || k == StatusSavedLocally || k == StatusFailed
}

// Status is a phase transition notification.
type Status struct {
	RequestID RequestID
	Kind      StatusKind
	// Attempt is the conversion number for oversize/converting/converted.
	Attempt  int
	Artifact Artifact
	// Size and Budget are set for oversize.
	Size   int64
	Budget int64
	// Outcome is set for terminal statuses.
	Outcome *Outcome
}

type StatusSink interface {
	OnStatus(Status)
}

type ProgressSink interface {
	OnProgress(Progress)
}

// StatusSinkFunc adapts a function to a StatusSink.
type StatusSinkFunc func(Status)

func (f StatusSinkFunc) OnStatus(s Status) {
	f(s)
}

// ProgressSinkFunc adapts a function to a ProgressSink.
type ProgressSinkFunc func(Progress)

func (f ProgressSinkFunc) OnProgress(p Progress) {
	f(p)
}

type nopSink struct{}

func (nopSink) OnStatus(Status)     {}
func (nopSink) OnProgress(Progress) {}

// ProgressFunc is how collaborators report progress: done units out of total units, in whatever unit the
// collaborator works in (bytes, microseconds of media, ...). A total of zero or less means unknown.
type ProgressFunc func(done, total int64)

// progressStream turns raw collaborator reports into clamped, non-decreasing percentages for one stream.
type progressStream struct {
	sink     ProgressSink
	template Progress
	last     float64
	started  bool
}

func newProgressStream(sink ProgressSink, id RequestID, phase Phase, attempt int) *progressStream {
	return &progressStream{
		sink:     sink,
		template: Progress{RequestID: id, Phase: phase, Attempt: attempt},
	}
}

func (s *progressStream) report(done, total int64) {
	if total <= 0 {
		return
	}
	s.set(float64(done) / float64(total) * 100)
}

func (s *progressStream) set(percent float64) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	if s.started && percent <= s.last {
		return
	}
	s.started = true
	s.last = percent
	p := s.template
	p.Percent = percent
	s.sink.OnProgress(p)
}

// complete closes the stream at 100%.
func (s *progressStream) complete() {
	s.set(100)
}
