package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidFilePermissions = 0o600

var (
	errNoServe    = errors.New("no running serve found")
	errStaleServe = errors.New("serve is not running")
)

// serveLock is the PID file a running serve holds an exclusive flock on.
// The lock, not the file's presence, decides whether serve is running.
type serveLock struct {
	f    *os.File
	path string
}

func acquireServeLock(path string) (*serveLock, error) {
	if path == "" {
		return nil, errors.New("serve lock: empty PID file path")
	}

	if err := os.MkdirAll(filepath.Dir(path), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("serve lock: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("serve lock: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		if pid, perr := parsePID(path); perr == nil {
			return nil, fmt.Errorf("serve is already running (PID %d)", pid)
		}

		return nil, fmt.Errorf("serve is already running (%s is locked)", path)
	}

	l := &serveLock{f: f, path: path}
	if err := l.record(os.Getpid()); err != nil {
		l.Release()
		return nil, err
	}

	return l, nil
}

func (l *serveLock) record(pid int) error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("serve lock: %w", err)
	}

	if _, err := l.f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("serve lock: %w", err)
	}

	return l.f.Sync()
}

// Release removes the PID file before dropping the lock so a new serve never
// sees our PID.
func (l *serveLock) Release() {
	os.Remove(l.path)
	l.f.Close()
}

func parsePID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%s does not hold a PID: %q", path, strings.TrimSpace(string(data)))
	}

	return pid, nil
}

// liveServe returns the serve process recorded at pidPath. A PID file whose
// process is gone is removed and reported as errStaleServe.
func liveServe(pidPath string) (*os.Process, error) {
	pid, err := parsePID(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w (no PID file at %s)", errNoServe, pidPath)
	}

	if err != nil {
		return nil, err
	}

	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.Signal(0))
	}

	if err != nil {
		os.Remove(pidPath)
		return nil, fmt.Errorf("%w (PID %d gone, stale PID file removed)", errStaleServe, pid)
	}

	return proc, nil
}

func serveRunning(pidPath string) (int, bool) {
	proc, err := liveServe(pidPath)
	if err != nil {
		return 0, false
	}

	return proc.Pid, true
}

// sendSIGHUP asks a running serve to refresh now.
func sendSIGHUP(pidPath string) error {
	proc, err := liveServe(pidPath)
	if err != nil {
		return err
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("signalling serve (PID %d): %w", proc.Pid, err)
	}

	return nil
}
