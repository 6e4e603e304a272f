package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultSizeBudgetBytes matches the upload limit of the original remote channel.
	DefaultSizeBudgetBytes int64 = 50 * 1024 * 1024
	// MaxConvertAttempts bounds the derivation chain to Original -> Resized -> ResizedTwice. It is not tunable.
	MaxConvertAttempts = 2
)

type Config struct {
	// Remote deliveries must be strictly smaller than this.
	SizeBudgetBytes int64
	// Only 0 (use MaxConvertAttempts) and MaxConvertAttempts are accepted.
	MaxConvertAttempts int
	// Directory that remote-bound artifacts are fetched into.
	WorkDir string
	// Directory that local saves are fetched into.
	SaveDir string
}

var DefaultConfig = Config{
	SizeBudgetBytes:    DefaultSizeBudgetBytes,
	MaxConvertAttempts: MaxConvertAttempts,
	WorkDir:            os.TempDir(),
	SaveDir:            ".",
}

func (c Config) Validate() error {
	if c.SizeBudgetBytes <= 0 {
		return fmt.Errorf("size budget must be positive, got %d", c.SizeBudgetBytes)
	}
	if c.MaxConvertAttempts != 0 && c.MaxConvertAttempts != MaxConvertAttempts {
		return fmt.Errorf("max convert attempts is fixed at %d, got %d", MaxConvertAttempts, c.MaxConvertAttempts)
	}
	return nil
}

// dirFor is where a request's Original is fetched to. Remote requests get a directory of their own under WorkDir,
// so concurrent requests for the same media never share a file.
func (c Config) dirFor(req Request) string {
	if req.Destination == Local {
		return c.SaveDir
	}
	return filepath.Join(c.WorkDir, string(req.ID))
}
