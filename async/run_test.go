package async

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	assert := assert_.New(t)
	a := <-Run(func() int {
		return 123
	})
	assert.Equal(123, a)

	// Buffered, so the goroutine finishes even if nobody receives.
	done := make(chan struct{})
	_ = Run(func() int {
		defer close(done)
		return 0
	})
	<-done
}

func TestRunOrdered(t *testing.T) {
	assert := assert_.New(t)
	release := make(chan struct{})
	slow := Run(func() string {
		<-release
		return "slow"
	})
	fast := Run(func() string { return "fast" })
	assert.Equal("fast", <-fast)
	close(release)
	assert.Equal("slow", <-slow)
}
