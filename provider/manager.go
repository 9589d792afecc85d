package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"toolchat/config"
	"toolchat/model"
)

// ErrNoProvider is returned by Send when no provider is configured.
var ErrNoProvider = errors.New("no provider available")

// Manager holds the initialized providers and the active one. It is the
// model client used by the conversation core.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]model.Provider
	active    string
}

// NewManager selects defaultID as the active provider, or the first id in
// sorted order when defaultID is not available.
func NewManager(providers map[string]model.Provider, defaultID string) *Manager {
	m := &Manager{providers: providers}
	if m.providers == nil {
		m.providers = make(map[string]model.Provider)
	}

	if _, ok := m.providers[defaultID]; ok {
		m.active = defaultID
	} else if ids := m.IDs(); len(ids) > 0 {
		m.active = ids[0]
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Default provider %q unavailable, using %q", defaultID, m.active)
		}
	}

	return m
}

// IDs returns the available provider ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Use makes id the active provider. A non-empty modelName also switches its
// model.
func (m *Manager) Use(id, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.providers[id]
	if !ok {
		return fmt.Errorf("provider %q is not enabled", id)
	}
	m.active = id
	if modelName != "" {
		p.SetModel(modelName)
	}
	return nil
}

// Active returns the active provider id and model.
func (m *Manager) Active() (providerID, modelName string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[m.active]
	if !ok {
		return "", ""
	}
	return m.active, p.GetModel()
}

// Provider returns the provider registered under id.
func (m *Manager) Provider(id string) (model.Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[id]
	return p, ok
}

// Send forwards req to the active provider.
func (m *Manager) Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	m.mu.RLock()
	p, ok := m.providers[m.active]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNoProvider
	}
	return p.Send(ctx, req)
}

// ListModels merges the models of every provider. Providers that fail are
// skipped; an error is returned only when all of them fail.
func (m *Manager) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	var all []model.ModelInfo
	var errs []error

	for _, id := range m.IDs() {
		p, _ := m.Provider(id)
		models, err := p.ListModels(ctx)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] ListModels: %s failed: %v", id, err)
			}
			errs = append(errs, err)
			continue
		}
		all = append(all, models...)
	}

	if len(all) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return all, nil
}
