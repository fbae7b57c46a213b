// Package runlock provides exclusive locking for stagehand runs.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	// localStateDirName is the relative path for transient stagehand state.
	localStateDirName = "_stagehand/_local-state"
	// runLockFileName is the filename used for run locking.
	runLockFileName = "run.lock"
	// runLockFileMode defines the permissions for the lock file.
	runLockFileMode = 0o644
	// localStateDirMode defines the permissions for the local state directory.
	localStateDirMode = 0o755
)

// ErrLockHeld signals another run currently owns the repository.
var ErrLockHeld = errors.New("run lock already held")

// Info is the metadata stamped into the lock file.
type Info struct {
	PID       int       `json:"pid"`
	Feature   string    `json:"feature,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Lock holds the acquired run lock file handle.
type Lock struct {
	file *os.File
	path string
}

// Acquire creates and locks the run lock file for the repository, stamping
// it with the pid and feature of this run. A live holder surfaces as
// ErrLockHeld; a dead holder surfaces as a stale-lock error with guidance.
func Acquire(repoRoot string, feature string) (*Lock, error) {
	if repoRoot == "" {
		return nil, errors.New("repo root is required")
	}

	lockPath := filepath.Join(repoRoot, filepath.FromSlash(localStateDirName), runLockFileName)
	if err := os.MkdirAll(filepath.Dir(lockPath), localStateDirMode); err != nil {
		return nil, fmt.Errorf("create run lock directory %s: %w", filepath.Dir(lockPath), err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, runLockFileMode)
	if err != nil {
		return nil, fmt.Errorf("open run lock %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, describeHolder(lockPath))
		}
		return nil, fmt.Errorf("lock run lock %s: %w", lockPath, err)
	}

	if err := rejectStale(lockPath); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
		return nil, err
	}

	info := Info{PID: os.Getpid(), Feature: feature, StartedAt: time.Now().UTC()}
	if err := stamp(file, info); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
		return nil, err
	}

	return &Lock{file: file, path: lockPath}, nil
}

// Release unlocks and removes the run lock file.
func (lock *Lock) Release() error {
	if lock == nil || lock.file == nil {
		return nil
	}
	if err := syscall.Flock(int(lock.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = lock.file.Close()
		return fmt.Errorf("unlock run lock: %w", err)
	}
	if err := lock.file.Close(); err != nil {
		return err
	}
	if err := os.Remove(lock.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run lock %s: %w", lock.path, err)
	}
	return nil
}

// Read reports the holder metadata when a lock file exists.
func Read(repoRoot string) (Info, bool, error) {
	if repoRoot == "" {
		return Info{}, false, errors.New("repo root is required")
	}
	path := filepath.Join(repoRoot, filepath.FromSlash(localStateDirName), runLockFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, false, nil
		}
		return Info{}, false, fmt.Errorf("read run lock %s: %w", path, err)
	}
	info, err := decodeInfo(data)
	if err != nil {
		return Info{}, false, err
	}
	return info, true, nil
}

// rejectStale refuses to reuse a lock file stamped by a dead process. The
// flock is already ours at this point; the stale file still demands operator
// attention because the previous run did not shut down cleanly.
func rejectStale(lockPath string) error {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read run lock %s: %w", lockPath, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	info, err := decodeInfo(data)
	if err != nil {
		return fmt.Errorf("stale run lock at %s: %w; remove the lock file to continue", lockPath, err)
	}

	alive, err := processExists(info.PID)
	if err != nil {
		return fmt.Errorf("verify run lock pid %d: %w", info.PID, err)
	}
	if !alive {
		return fmt.Errorf("stale run lock at %s (pid %d since %s); remove the lock file to continue",
			lockPath, info.PID, info.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// describeHolder renders who holds the lock for the contention error.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return fmt.Sprintf("run lock %s is already held; wait for the other run to finish", lockPath)
	}
	info, err := decodeInfo(data)
	if err != nil {
		return fmt.Sprintf("run lock %s is already held; wait for the other run to finish", lockPath)
	}
	return fmt.Sprintf("run lock %s is already held by pid %d since %s; wait for the other run to finish",
		lockPath, info.PID, info.StartedAt.Format(time.RFC3339))
}

// stamp truncates the lock file and writes holder metadata.
func stamp(file *os.File, info Info) error {
	if file == nil {
		return errors.New("lock file is required")
	}
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncate run lock: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek run lock: %w", err)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode run lock: %w", err)
	}
	data = append(data, '\n')
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write run lock: %w", err)
	}
	return nil
}

// decodeInfo parses and validates holder metadata from the lock file.
func decodeInfo(data []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("decode run lock: %w", err)
	}
	if info.PID <= 0 {
		return Info{}, errors.New("run lock missing pid")
	}
	if info.StartedAt.IsZero() {
		return Info{}, errors.New("run lock missing started_at")
	}
	return info, nil
}

// processExists checks whether a PID appears to reference a running process.
func processExists(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.ESRCH) {
		return false, nil
	}
	if errors.Is(err, syscall.EPERM) {
		return true, nil
	}
	return false, err
}
