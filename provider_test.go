package video_relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/video-relay/pipeline"
)

type testSource string

func (s testSource) URL() string { return string(s) }

func (s testSource) Recon(context.Context, pipeline.MediaKind) (ResolvedSource, error) {
	return nil, errors.New("not implemented")
}

func prefixMatcher(prefix string) MatchFunc {
	return func(s string) (Source, error) {
		if strings.HasPrefix(s, prefix) {
			return testSource(s), nil
		}
		return nil, errors.New("wrong prefix")
	}
}

func TestProviderRegistryAdd(t *testing.T) {
	assert := assert_.New(t)
	r := ProviderRegistry{}

	assert.ErrorIs(r.Add(Provider{Name: "", Match: prefixMatcher("a")}), ErrInvalidProvider)
	assert.ErrorIs(r.Add(Provider{Name: "a"}), ErrInvalidProvider)
	assert.NoError(r.Add(Provider{Name: "a", Match: prefixMatcher("a")}))
	assert.ErrorIs(r.Add(Provider{Name: "a", Match: prefixMatcher("a")}), ErrDuplicateProvider)
	assert.Panics(func() { r.MustAdd(Provider{Name: "a", Match: prefixMatcher("a")}) })

	r.MustAdd(Provider{Name: "b", Match: prefixMatcher("b")}.WithPriority(PriorityHighest))
	assert.NoError(r.Add(Provider{Name: "c", Match: prefixMatcher("c"), Priority: PriorityLowest}))
	// Equal priorities keep registration order.
	r.MustAdd(Provider{Name: "d", Match: prefixMatcher("d")})
	assert.Equal([]string{"b", "a", "d", "c"}, r.List())
}

func TestProviderRegistryMatch(t *testing.T) {
	assert := assert_.New(t)
	r := ProviderRegistry{}

	_, err := r.Match("anything")
	assert.ErrorIs(err, ErrNoMatch)

	r.MustAdd(Provider{Name: "any-http", Match: prefixMatcher("http"), Priority: 10})
	r.MustAdd(Provider{Name: "https-only", Match: prefixMatcher("https")})

	m, err := r.Match("https://example.com")
	if assert.NoError(err) {
		assert.Equal("https-only", m.ProviderName)
		assert.Equal("https://example.com", m.Source.URL())
	}
	m, err = r.Match("http://example.com")
	if assert.NoError(err) {
		assert.Equal("any-http", m.ProviderName)
	}

	_, err = r.Match("ftp://example.com")
	if assert.ErrorIs(err, ErrNoMatch) {
		assert.Contains(err.Error(), "[any-http]")
		assert.Contains(err.Error(), "[https-only]")
		assert.Contains(err.Error(), "wrong prefix")
	}

	m, err = r.MatchWith("any-http", "https://example.com")
	if assert.NoError(err) {
		assert.Equal("any-http", m.ProviderName)
	}
	_, err = r.MatchWith("https-only", "http://example.com")
	assert.ErrorIs(err, ErrNoMatch)
	_, err = r.MatchWith("missing", "http://example.com")
	assert.ErrorIs(err, ErrUnknownProvider)
}
