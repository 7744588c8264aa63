package orchestrator

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/ipcurator/curator/pkg/curatorerr"
)

// Lock is the whole-run exclusive advisory lock (§5 L1): a single
// well-known file held open for the process lifetime. A second
// invocation's AcquireLock call observes EWOULDBLOCK and returns
// ErrLocked so the caller can exit with a distinct code rather than
// blocking behind the running instance.
type Lock struct {
	f *os.File
}

// AcquireLock opens (creating if necessary) the lock file at path and
// takes a non-blocking exclusive flock on it.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, curatorerr.Wrap(curatorerr.ErrConfig, "orchestrator: open lock file", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, curatorerr.New(curatorerr.ErrLocked, "orchestrator: another run already holds the lock")
		}
		return nil, curatorerr.Wrap(curatorerr.ErrConfig, "orchestrator: flock", err)
	}

	return &Lock{f: f}, nil
}

// Release drops the flock and closes the underlying file handle. Safe to
// call once; a nil Lock is a no-op so deferred Release calls in partially
// initialized shutdown paths don't need a nil check at every call site.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
