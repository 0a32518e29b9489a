package execctx

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
)

// CheckpointState is the sidecar document persisted after each step:
// which steps have completed and, for a stage that implements the
// optional resume-cursor hook, where it left off.
type CheckpointState struct {
	WorkflowID     string         `json:"workflow_id"`
	CompletedSteps []string       `json:"completed_steps"`
	Cursors        map[string]any `json:"cursors"`
}

// CheckpointManager persists and resumes CheckpointState to a file-local
// sidecar. Writes are serialized with a mutex; reads see the last
// committed snapshot.
type CheckpointManager struct {
	mu      sync.Mutex
	path    string
	enabled bool
	state   CheckpointState
}

// NewCheckpointManager loads path if it exists (resume enabled) or starts
// from an empty state. When enabled is false the manager tracks state in
// memory only and never writes to disk.
func NewCheckpointManager(workflowID, path string, enabled bool) (*CheckpointManager, error) {
	m := &CheckpointManager{
		path:    path,
		enabled: enabled,
		state: CheckpointState{
			WorkflowID: workflowID,
			Cursors:    make(map[string]any),
		},
	}

	if !enabled || path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, stacerrors.NewConfigurationError("checkpoint.path", "cannot read checkpoint sidecar", err)
	}

	var state CheckpointState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, stacerrors.NewConfigurationError("checkpoint.path", "malformed checkpoint sidecar", err)
	}
	if state.Cursors == nil {
		state.Cursors = make(map[string]any)
	}
	m.state = state
	return m, nil
}

// IsComplete reports whether stepID was marked complete in a prior run.
func (m *CheckpointManager) IsComplete(stepID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.state.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// Cursor returns the resume cursor recorded for stepID, if any.
func (m *CheckpointManager) Cursor(stepID string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state.Cursors[stepID]
	return v, ok
}

// MarkComplete records stepID as complete and persists the snapshot.
func (m *CheckpointManager) MarkComplete(stepID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.state.CompletedSteps {
		if id == stepID {
			return m.persistLocked()
		}
	}
	m.state.CompletedSteps = append(m.state.CompletedSteps, stepID)
	delete(m.state.Cursors, stepID)
	return m.persistLocked()
}

// SetCursor records a mid-step resume cursor and persists the snapshot.
func (m *CheckpointManager) SetCursor(stepID string, cursor any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Cursors[stepID] = cursor
	return m.persistLocked()
}

func (m *CheckpointManager) persistLocked() error {
	if !m.enabled || m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return stacerrors.NewUnexpectedError("checkpoint", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return stacerrors.NewUnexpectedError("checkpoint", err)
	}
	return os.Rename(tmp, m.path)
}

// Snapshot returns a copy of the current state, e.g. for inclusion in the
// final run manifest.
func (m *CheckpointManager) Snapshot() CheckpointState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.state
	cp.CompletedSteps = append([]string(nil), m.state.CompletedSteps...)
	cursors := make(map[string]any, len(m.state.Cursors))
	for k, v := range m.state.Cursors {
		cursors[k] = v
	}
	cp.Cursors = cursors
	return cp
}
