// Package workspace manages per-task working directories under the project's
// output root. Agents run inside their task's directory and the files they
// produce are collected from it when the task completes.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Info describes one provisioned task workspace.
type Info struct {
	TaskID    string
	Path      string
	CreatedAt time.Time
}

// Manager provisions and cleans up task workspaces.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at the given directory. The root is
// created on first Provision, not here.
func NewManager(root string) *Manager {
	if root == "" {
		root = "output"
	}
	return &Manager{root: root}
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// Provision creates a fresh working directory for the task. A leftover
// directory from a previous attempt is removed first so retries start clean.
func (m *Manager) Provision(taskID string) (*Info, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	path := filepath.Join(m.root, taskID)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("clearing stale workspace for %s: %w", taskID, err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace for %s: %w", taskID, err)
	}

	return &Info{
		TaskID:    taskID,
		Path:      path,
		CreatedAt: time.Now(),
	}, nil
}

// Collect verifies the expected files exist in the workspace and returns the
// relative paths of everything the task produced. Missing expected files make
// the collection fail.
func (m *Manager) Collect(info *Info, expected []string) ([]string, error) {
	var missing []string
	for _, name := range expected {
		if _, err := os.Stat(filepath.Join(info.Path, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("task %s did not produce expected files: %s", info.TaskID, strings.Join(missing, ", "))
	}

	var produced []string
	err := filepath.WalkDir(info.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(info.Path, path)
		if err != nil {
			return err
		}
		produced = append(produced, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace for %s: %w", info.TaskID, err)
	}
	sort.Strings(produced)
	return produced, nil
}

// Cleanup removes the task's workspace.
func (m *Manager) Cleanup(info *Info) error {
	if err := os.RemoveAll(info.Path); err != nil {
		return fmt.Errorf("removing workspace for %s: %w", info.TaskID, err)
	}
	return nil
}

// Prune removes workspace directories older than maxAge, left behind by
// crashed or interrupted runs. Returns the task IDs it removed.
func (m *Manager) Prune(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading workspace root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	var pruned []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			return pruned, fmt.Errorf("pruning %s: %w", entry.Name(), err)
		}
		pruned = append(pruned, entry.Name())
	}
	sort.Strings(pruned)
	return pruned, nil
}

// validateTaskID rejects IDs that would escape the workspace root.
func validateTaskID(taskID string) error {
	if taskID == "" {
		return fmt.Errorf("empty task id")
	}
	if strings.ContainsAny(taskID, `/\`) || strings.Contains(taskID, "..") {
		return fmt.Errorf("invalid task id %q", taskID)
	}
	return nil
}
