package trace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"
)

// Run is a run directory read back from disk.
type Run struct {
	Dir      string
	Metadata Metadata
	Planner  []PlannerStep
	Sessions []ExecutorSession
	Success  *Success
	Summary  string
	Timeline string
}

// Load reads the artifacts of a run directory. metadata.json is required;
// every other file is optional so partial traces load too.
func Load(dir string) (*Run, error) {
	run := &Run{Dir: dir}
	if err := readJSON(filepath.Join(dir, metadataFile), &run.Metadata); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, plannerFile), &run.Planner); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	sessions := map[string]ExecutorSession{}
	if err := readJSON(filepath.Join(dir, executorFile), &sessions); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		run.Sessions = append(run.Sessions, sessions[id])
	}

	var ok Success
	if err := readJSON(filepath.Join(dir, successFile), &ok); err == nil {
		run.Success = &ok
	}
	if data, err := os.ReadFile(filepath.Join(dir, summaryFile)); err == nil {
		run.Summary = string(data)
	}
	if data, err := os.ReadFile(filepath.Join(dir, timelineFile)); err == nil {
		run.Timeline = string(data)
	}
	return run, nil
}

// Finalized reports whether the run went through End.
func (r *Run) Finalized() bool {
	return r != nil && r.Metadata.FinalStatus != "" && r.Metadata.Success != nil
}

// ExecutorSteps flattens every executor session in order.
func (r *Run) ExecutorSteps() []ExecutorStep {
	var out []ExecutorStep
	for _, s := range r.Sessions {
		out = append(out, s.Steps...)
	}
	return out
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
