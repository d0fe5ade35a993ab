// Package lock enforces one daemon per profile with an advisory flock on a
// file inside the profile directory. The file carries a JSON owner record so
// a refused acquisition can say who holds it.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// FileName is the lock file kept inside the profile directory.
const FileName = "inboxd.lock"

// Owner describes the process holding a profile lock.
type Owner struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockHeldError is returned when another process holds the profile lock.
type LockHeldError struct {
	Owner Owner
	Path  string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("profile lock held by PID %d on %s since %s (%s)",
		e.Owner.PID, e.Owner.Hostname, e.Owner.AcquiredAt.Format(time.RFC3339), e.Path)
}

// Lock is an acquired profile lock. Released on Release or process exit.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive profile lock, creating the directory if
// needed. Returns LockHeldError when another process already holds it.
func Acquire(profileDir string) (*Lock, error) {
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(profileDir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		held := &LockHeldError{Owner: readOwner(path), Path: path}
		_ = f.Close()
		return nil, held
	}

	if err := writeOwner(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release drops the lock and removes the file. Safe to call on a nil
// receiver and idempotent after the first call.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before closing so no window exists where a stale file outlives
	// the flock.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeOwner(f *os.File) error {
	host, _ := os.Hostname()
	data, err := json.Marshal(Owner{
		PID:        os.Getpid(),
		Hostname:   host,
		AcquiredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}

// readOwner is diagnostics only; an unreadable or garbled record yields a
// zero Owner rather than an error.
func readOwner(path string) Owner {
	var o Owner
	data, err := os.ReadFile(path)
	if err != nil {
		return o
	}
	_ = json.Unmarshal(data, &o)
	return o
}
