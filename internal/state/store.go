package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	localStateDirName = "_stagehand/_local-state"
	stateFileName     = "state.json"
	stateDirMode      = 0o755
	stateFileMode     = 0o644
)

// Path returns the persisted state file location for a repository.
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, localStateDirName, stateFileName)
}

// Load reads the persisted state when present. The boolean reports whether
// a state file existed.
func Load(repoRoot string) (State, bool, error) {
	if strings.TrimSpace(repoRoot) == "" {
		return State{}, false, errors.New("repo root is required")
	}
	path := Path(repoRoot)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("read state %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return State{}, false, nil
	}
	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return State{}, false, fmt.Errorf("decode state %s: %w", path, err)
	}
	return loaded, true, nil
}

// Save persists the state snapshot to disk.
func Save(repoRoot string, snapshot State) error {
	if strings.TrimSpace(repoRoot) == "" {
		return errors.New("repo root is required")
	}
	path := Path(repoRoot)
	if err := os.MkdirAll(filepath.Dir(path), stateDirMode); err != nil {
		return fmt.Errorf("create state directory %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, stateFileMode); err != nil {
		return fmt.Errorf("write state %s: %w", path, err)
	}
	return nil
}
