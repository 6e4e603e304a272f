package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// removeFile deletes an artifact's file. A file that is already gone counts as removed, so cleanup can be repeated.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ledger tracks the artifacts a single invocation is responsible for deleting.
type ledger struct {
	artifacts []Artifact
	dirs      []string
	remove    func(string) error
	errs      *multierror.Error
	log       *zap.SugaredLogger
}

func newLedger(remove func(string) error, log *zap.SugaredLogger) *ledger {
	return &ledger{remove: remove, log: log}
}

func (l *ledger) track(a Artifact) {
	l.artifacts = append(l.artifacts, a)
}

// trackDir registers a directory created for the run. It is removed once it holds no tracked artifacts.
func (l *ledger) trackDir(dir string) {
	l.dirs = append(l.dirs, dir)
}

func (l *ledger) tracked() []Artifact {
	return append([]Artifact(nil), l.artifacts...)
}

// discard removes one artifact now. If removal fails the artifact stays tracked so that discardAll retries it.
func (l *ledger) discard(a Artifact) bool {
	for i, tracked := range l.artifacts {
		if tracked.Path != a.Path {
			continue
		}
		if err := l.remove(a.Path); err != nil {
			l.log.Warnw("failed to remove artifact", "path", a.Path, "kind", a.Kind, "error", err)
			l.errs = multierror.Append(l.errs, fmt.Errorf("remove %s artifact: %w", a.Kind, err))
			return false
		}
		l.log.Debugw("removed artifact", "path", a.Path, "kind", a.Kind)
		l.artifacts = append(l.artifacts[:i], l.artifacts[i+1:]...)
		return true
	}
	return false
}

// discardAll removes every tracked artifact, newest first, then the run's directories. A directory still holding an
// artifact that could not be removed is left in place.
func (l *ledger) discardAll() {
	for i := len(l.artifacts) - 1; i >= 0; i-- {
		l.discard(l.artifacts[i])
	}
	if len(l.artifacts) > 0 {
		return
	}
	for i := len(l.dirs) - 1; i >= 0; i-- {
		if err := l.remove(l.dirs[i]); err != nil {
			l.log.Warnw("failed to remove run directory", "path", l.dirs[i], "error", err)
			l.errs = multierror.Append(l.errs, fmt.Errorf("remove run directory: %w", err))
			continue
		}
		l.log.Debugw("removed run directory", "path", l.dirs[i])
	}
	l.dirs = nil
}

func (l *ledger) err() error {
	return l.errs.ErrorOrNil()
}
