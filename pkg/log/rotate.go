package log

import (
	"fmt"
	"os"
	"sync"
)

// RotatingFile is an io.Writer over a path that renames the current
// file aside once it crosses maxSize bytes, keeping at most maxCount
// old generations (path.1, path.2, ...; the oldest is removed). With
// maxCount <= 0 the file grows without bound, matching log_count's
// absence in a config file.
type RotatingFile struct {
	mu sync.Mutex

	path     string
	maxSize  int64
	maxCount int

	f    *os.File
	size int64
}

// OpenRotatingFile opens (creating if needed) the log file at path,
// sized for rotation at maxSize bytes across maxCount generations.
func OpenRotatingFile(path string, maxSize int64, maxCount int) (*RotatingFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file %s: %w", path, err)
	}
	return &RotatingFile{
		path:     path,
		maxSize:  maxSize,
		maxCount: maxCount,
		f:        f,
		size:     info.Size(),
	}, nil
}

// Write implements io.Writer, rotating the file first if p would push
// it past maxSize.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// rotate shifts path.(n-1) -> path.n down to path.maxCount, dropping
// whatever was already at path.maxCount, then reopens path fresh.
// Caller holds r.mu.
func (r *RotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close log file %s for rotation: %w", r.path, err)
	}

	if r.maxCount > 0 {
		oldest := fmt.Sprintf("%s.%d", r.path, r.maxCount)
		os.Remove(oldest)
		for n := r.maxCount - 1; n >= 1; n-- {
			from := fmt.Sprintf("%s.%d", r.path, n)
			to := fmt.Sprintf("%s.%d", r.path, n+1)
			os.Rename(from, to)
		}
		os.Rename(r.path, r.path+".1")
	}

	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("reopen log file %s after rotation: %w", r.path, err)
	}
	r.f = f
	r.size = 0
	return nil
}
