package pipeline

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestArtifactKind_Chain(t *testing.T) {
	assert := assert_.New(t)

	next, ok := Original.Next()
	assert.True(ok)
	assert.Equal(Resized, next)
	next, ok = Resized.Next()
	assert.True(ok)
	assert.Equal(ResizedTwice, next)
	_, ok = ResizedTwice.Next()
	assert.False(ok)

	assert.Equal(0, Original.Generation())
	assert.Equal(2, ResizedTwice.Generation())
	assert.Equal("resized-twice", ResizedTwice.String())
	assert.Equal("ArtifactKind(7)", ArtifactKind(7).String())
}

func TestArtifact_Derive(t *testing.T) {
	assert := assert_.New(t)
	a := Artifact{Path: "/tmp/a.mp4", Kind: Original, Media: Video, Size: 123}

	b, err := a.Derive("/tmp/a_resized.mp4")
	assert.NoError(err)
	assert.Equal(Artifact{Path: "/tmp/a_resized.mp4", Kind: Resized, Media: Video}, b)

	c, err := b.Derive("/tmp/a_resized_resized.mp4")
	assert.NoError(err)
	assert.Equal(ResizedTwice, c.Kind)

	_, err = c.Derive("/tmp/a_resized_resized_resized.mp4")
	assert.Error(err)
}

func TestRequest_Validate(t *testing.T) {
	assert := assert_.New(t)

	r := NewRequest("https://youtu.be/abc", Video, Remote)
	assert.NotEmpty(r.ID)
	assert.NoError(r.Validate())
	assert.NotEqual(r.ID, NewRequest("https://youtu.be/abc", Video, Remote).ID)

	assert.ErrorIs(NewRequest("", Video, Remote).Validate(), ErrEmptyLocator)
	assert.ErrorIs(NewRequest("x", "podcast", Remote).Validate(), ErrUnknownMediaKind)
	assert.ErrorIs(NewRequest("x", Audio, "email").Validate(), ErrUnknownDestination)
}

func TestParse(t *testing.T) {
	assert := assert_.New(t)

	k, err := ParseMediaKind("audio")
	assert.NoError(err)
	assert.Equal(Audio, k)
	_, err = ParseMediaKind("Audio")
	assert.ErrorIs(err, ErrUnknownMediaKind)

	d, err := ParseDestination("remote")
	assert.NoError(err)
	assert.Equal(Remote, d)
	_, err = ParseDestination("")
	assert.ErrorIs(err, ErrUnknownDestination)
}

func TestOutcome_String(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("delivered(/tmp/a.mp4)", deliveredOutcome(Artifact{Path: "/tmp/a.mp4"}, 0).String())
	assert.Equal("failed(oversize-exceeded): too big", failedOutcome(ReasonOversizeExceeded, errString("too big"), 2).String())
	assert.True(savedLocallyOutcome(Artifact{}).IsSuccess())
}

type errString string

func (e errString) Error() string {
	return string(e)
}
