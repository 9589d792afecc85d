package config

import "sync"

// ToggleSnapshot is the view of the toggles a turn works with from start to
// finish.
type ToggleSnapshot struct {
	ToolsEnabled bool
	AutoExecute  bool
}

// Toggles holds the process-wide tool switches. Readers take a snapshot at
// the start of a turn; writers notify subscribers after each change.
type Toggles struct {
	mu          sync.RWMutex
	state       ToggleSnapshot
	subscribers []func(ToggleSnapshot)
}

func NewToggles(cfg *Config) *Toggles {
	t := &Toggles{}
	if cfg != nil {
		t.state = ToggleSnapshot{
			ToolsEnabled: cfg.ToolsEnabled,
			AutoExecute:  cfg.AutoExecuteTools,
		}
	}
	return t
}

func (t *Toggles) Snapshot() ToggleSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Toggles) ToolsEnabled() bool {
	return t.Snapshot().ToolsEnabled
}

func (t *Toggles) AutoExecute() bool {
	return t.Snapshot().AutoExecute
}

func (t *Toggles) SetToolsEnabled(enabled bool) {
	t.update(func(s *ToggleSnapshot) { s.ToolsEnabled = enabled })
}

func (t *Toggles) SetAutoExecute(enabled bool) {
	t.update(func(s *ToggleSnapshot) { s.AutoExecute = enabled })
}

// Refresh re-reads the toggles from a reloaded configuration.
func (t *Toggles) Refresh(cfg *Config) {
	t.update(func(s *ToggleSnapshot) {
		s.ToolsEnabled = cfg.ToolsEnabled
		s.AutoExecute = cfg.AutoExecuteTools
	})
}

// Subscribe registers fn to be called with the new state after every change.
func (t *Toggles) Subscribe(fn func(ToggleSnapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

func (t *Toggles) update(apply func(*ToggleSnapshot)) {
	t.mu.Lock()
	apply(&t.state)
	state := t.state
	subscribers := append([]func(ToggleSnapshot){}, t.subscribers...)
	t.mu.Unlock()

	if DebugLog != nil {
		DebugLog.Printf("[Config] Toggles changed: tools=%v auto_execute=%v", state.ToolsEnabled, state.AutoExecute)
	}

	for _, fn := range subscribers {
		fn(state)
	}
}
