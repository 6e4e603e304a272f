package pipeline

import "fmt"

// ArtifactKind is the position of an Artifact in its derivation chain.
type ArtifactKind int

const (
	Original ArtifactKind = iota
	Resized
	ResizedTwice
)

var artifactKindNames = map[ArtifactKind]string{
	Original:     "original",
	Resized:      "resized",
	ResizedTwice: "resized-twice",
}

func (k ArtifactKind) String() string {
	if name, ok := artifactKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ArtifactKind(%d)", int(k))
}

// Generation is the number of re-encodes between the Original and an artifact of this kind.
func (k ArtifactKind) Generation() int {
	return int(k)
}

// Next returns the kind produced by converting an artifact of this kind. ResizedTwice is the end of the chain, so
// its Next is itself and ok is false.
func (k ArtifactKind) Next() (next ArtifactKind, ok bool) {
	switch k {
	case Original:
		return Resized, true
	case Resized:
		return ResizedTwice, true
	default:
		return k, false
	}
}

// Artifact refers to a stored media file owned by a single Pipeline invocation.
type Artifact struct {
	Path  string
	Kind  ArtifactKind
	Media MediaKind
	// Size in bytes, zero until probed.
	Size int64
}

// Derive builds the Artifact for the next generation stored at path. Converters use it so that the derivation
// chain is maintained in one place.
func (a Artifact) Derive(path string) (Artifact, error) {
	next, ok := a.Kind.Next()
	if !ok {
		return Artifact{}, fmt.Errorf("cannot derive from %s artifact %s", a.Kind, a.Path)
	}
	return Artifact{
		Path:  path,
		Kind:  next,
		Media: a.Media,
	}, nil
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s %s artifact %s", a.Kind, a.Media, a.Path)
}
