package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/serialwatch/internal/logging"
)

// ErrPortLocked is returned when another live serialwatch process is
// observing the same device.
var ErrPortLocked = errors.New("port is locked by another process")

// Lock records which process is observing a device. Two readers on one
// tty would each see only part of the output.
type Lock struct {
	Port      string    `json:"port"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	lockFile string
	logger   *logging.Logger
}

// LockPath returns the lock file for port inside dir.
func LockPath(dir, port string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(strings.TrimLeft(port, "/\\"))
	return filepath.Join(dir, name+".lock")
}

// DefaultLockDir is the lock directory shared by every user on the host,
// so two accounts cannot observe the same device at once.
func DefaultLockDir() string {
	return filepath.Join(os.TempDir(), "serialwatch")
}

// ensureLockDir creates dir world-writable with the sticky bit, like /tmp,
// so any user can add a lock but only the owner can remove it. An existing
// directory is left as it is.
func ensureLockDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o777|os.ModeSticky); err != nil {
		return err
	}
	// MkdirAll is subject to the umask.
	if err := os.Chmod(dir, 0o777|os.ModeSticky); err != nil && !os.IsPermission(err) {
		return err
	}
	return nil
}

// AcquireLock takes the lock for port. A lock left by a dead process is
// removed and taken over. The logger may be nil.
func AcquireLock(dir, port string, logger *logging.Logger) (*Lock, error) {
	if err := ensureLockDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	lockPath := LockPath(dir, port)

	if existing, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, fmt.Errorf("%w: PID %d on %s", ErrPortLocked, existing.PID, existing.Hostname)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		if logger != nil {
			logger.Warn("stale lock cleaned", "port", port, "old_pid", existing.PID)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		Port:      port,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL loses the race cleanly against a concurrent acquirer.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrPortLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	if logger != nil {
		logger.Debug("port lock acquired", "port", port, "path", lockPath)
	}
	return lock, nil
}

// Release removes the lock file if this process still owns it. Safe to
// call multiple times and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}
	existing, err := ReadLock(l.lockFile)
	if err != nil || existing.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.lockFile); err != nil {
		return err
	}
	if l.logger != nil {
		l.logger.Debug("port lock released", "port", l.Port)
	}
	return nil
}

// ReadLock parses a lock file.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// isProcessAlive sends signal 0, which checks existence without
// affecting the process.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to another user.
	return err == nil || errors.Is(err, syscall.EPERM)
}
