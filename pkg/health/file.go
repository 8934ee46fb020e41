package health

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/satellite-operations/pkg/log"
)

// DefaultLivenessFile is touched after every processed message
const DefaultLivenessFile = "/tmp/healthy"

// FileToucher updates the modification time of a liveness file. An external
// liveness probe compares the mtime against a threshold.
type FileToucher struct {
	Path string
}

// NewFileToucher creates a toucher for path (DefaultLivenessFile when empty)
func NewFileToucher(path string) *FileToucher {
	if path == "" {
		path = DefaultLivenessFile
	}
	return &FileToucher{Path: path}
}

// Touch creates the file if needed and sets its mtime to now. Errors are
// logged and otherwise ignored.
func (f *FileToucher) Touch() {
	if f == nil || f.Path == "" {
		return
	}
	if err := touch(f.Path); err != nil {
		logger := log.WithComponent("health")
		logger.Warn().Err(err).Str("path", f.Path).Msg("Failed to touch liveness file")
	}
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}
