// Package deliver sends finished artifacts to remote channels.
package deliver

import (
	"fmt"
	"os"

	"github.com/alanbriolat/video-relay/pipeline"
)

// openArtifact opens the artifact for upload, returning its size as well.
func openArtifact(artifact pipeline.Artifact) (*os.File, int64, error) {
	f, err := os.Open(artifact.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", artifact.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", artifact.Path, err)
	}
	return f, info.Size(), nil
}

func rejected(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", pipeline.ErrChannelRejected, fmt.Sprintf(format, args...))
}

func transportFailure(err error) error {
	return fmt.Errorf("%w: %v", pipeline.ErrTransportFailure, err)
}
