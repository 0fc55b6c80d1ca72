package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// lockRetryInterval is how often a contended lock is retried while the
// context is still live
const lockRetryInterval = 5 * time.Millisecond

// fileLock is an flock(2) advisory lock on a sidecar file. It serializes
// writers across processes sharing one corpus file, for example the API
// server and a ticketctl backfill.
type fileLock struct {
	f *os.File
}

// acquireLock takes a shared or exclusive lock on path, creating the file
// if needed. It gives up with the context error once ctx is done.
func acquireLock(ctx context.Context, path string, exclusive bool) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (l *fileLock) release() error {
	unlockErr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return errors.Join(unlockErr, l.f.Close())
}
