package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyLocator       = errors.New("empty source locator")
	ErrUnknownMediaKind   = errors.New("unknown media kind")
	ErrUnknownDestination = errors.New("unknown destination")
	ErrInvalidRequestID   = errors.New("invalid request ID")
)

type MediaKind string

const (
	Audio MediaKind = "audio"
	Video MediaKind = "video"
)

func (k MediaKind) String() string {
	return string(k)
}

func (k MediaKind) Valid() bool {
	return k == Audio || k == Video
}

// ParseMediaKind accepts the names used on the command line and in config files.
func ParseMediaKind(s string) (MediaKind, error) {
	k := MediaKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaKind, s)
	}
	return k, nil
}

type Destination string

const (
	// Local keeps the fetched artifact where the Fetcher wrote it.
	Local Destination = "local"
	// Remote hands the artifact to a Deliverer, subject to the size budget.
	Remote Destination = "remote"
)

func (d Destination) String() string {
	return string(d)
}

func (d Destination) Valid() bool {
	return d == Local || d == Remote
}

func ParseDestination(s string) (Destination, error) {
	d := Destination(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDestination, s)
	}
	return d, nil
}

type RequestID string

func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// Valid reports whether the ID can name a directory of its own under the work directory.
func (id RequestID) Valid() bool {
	s := string(id)
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// Request is a single user request. It is passed by value and never modified once a Pipeline has accepted it.
type Request struct {
	ID          RequestID
	Locator     string
	Kind        MediaKind
	Destination Destination
}

// NewRequest creates a Request with a fresh RequestID.
func NewRequest(locator string, kind MediaKind, destination Destination) Request {
	return Request{
		ID:          NewRequestID(),
		Locator:     locator,
		Kind:        kind,
		Destination: destination,
	}
}

func (r Request) Validate() error {
	if !r.ID.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRequestID, r.ID)
	}
	if r.Locator == "" {
		return ErrEmptyLocator
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMediaKind, r.Kind)
	}
	if !r.Destination.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDestination, r.Destination)
	}
	return nil
}

func (r Request) String() string {
	return fmt.Sprintf("Request{ID:\"%s\", Locator:\"%s\", Kind:%s, Destination:%s}", r.ID, r.Locator, r.Kind, r.Destination)
}
