// Package checkpoint persists graph snapshots as JSON files, one per
// completed superstep
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/auditor/internal/graph"
)

// ErrNoSnapshots is returned by Latest when a run has no snapshot on disk
var ErrNoSnapshots = errors.New("no snapshots")

// FileStore writes snapshots to <Dir>/<run_id>/step-NNN.json
type FileStore struct {
	Dir string
}

// NewFileStore creates a store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Save implements graph.Checkpointer
func (fs *FileStore) Save(_ context.Context, snap graph.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("snapshot without run id")
	}
	dir := filepath.Join(fs.Dir, snap.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %d: %w", snap.Step, err)
	}

	// write then rename so a reader never sees half a snapshot
	path := filepath.Join(dir, stepFile(snap.Step))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Step, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot %d: %w", snap.Step, err)
	}
	return nil
}

// Runs lists the run IDs with at least one snapshot
func (fs *FileStore) Runs() ([]string, error) {
	entries, err := os.ReadDir(fs.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if steps, _ := fs.Steps(e.Name()); len(steps) > 0 {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// Steps lists snapshot files of a run in step order
func (fs *FileStore) Steps(runID string) ([]string, error) {
	dir := filepath.Join(fs.Dir, runID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", runID, err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "step-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Latest loads the last snapshot of a run
func (fs *FileStore) Latest(runID string) (*graph.Snapshot, error) {
	steps, err := fs.Steps(runID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNoSnapshots)
	}
	return Load(steps[len(steps)-1])
}

// Load reads a snapshot file. A bare state document, as written by
// `auditor audit --state`, is accepted too and wrapped in a snapshot
func Load(path string) (*graph.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if _, ok := probe["state"]; ok {
		var snap graph.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return &snap, nil
	}

	var st graph.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &graph.Snapshot{RunID: st.RunID, State: &st}, nil
}

func stepFile(step int) string {
	return fmt.Sprintf("step-%03d.json", step)
}
