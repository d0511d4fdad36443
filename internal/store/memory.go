// Package store provides TemplateStore implementations for saved mappings:
// an in-process map for single-node use and PostgreSQL through pgx.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/mapexport/internal/core"
)

// Memory keeps templates in process memory. It is the default when no
// database is configured; templates are lost on restart.
type Memory struct {
	mu        sync.RWMutex
	templates map[string]core.MappingTemplate
}

var _ core.TemplateStore = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{templates: make(map[string]core.MappingTemplate)}
}

func (m *Memory) CreateTemplate(ctx context.Context, t core.MappingTemplate) (*core.MappingTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(t.TargetKey, t.Name, "") {
		return nil, core.ErrTemplateExists
	}
	m.templates[t.ID] = cloneTemplate(t)
	out := cloneTemplate(t)
	return &out, nil
}

func (m *Memory) GetTemplate(ctx context.Context, id uuid.UUID) (*core.MappingTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id.String()]
	if !ok {
		return nil, core.ErrTemplateNotFound
	}
	out := cloneTemplate(t)
	return &out, nil
}

func (m *Memory) ListTemplates(ctx context.Context, targetKey string) ([]core.MappingTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []core.MappingTemplate
	for _, t := range m.templates {
		if t.TargetKey == targetKey {
			list = append(list, cloneTemplate(t))
		}
	}
	return list, nil
}

func (m *Memory) UpdateTemplate(ctx context.Context, t core.MappingTemplate) (*core.MappingTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[t.ID]; !ok {
		return nil, core.ErrTemplateNotFound
	}
	if m.nameTaken(t.TargetKey, t.Name, t.ID) {
		return nil, core.ErrTemplateExists
	}
	m.templates[t.ID] = cloneTemplate(t)
	out := cloneTemplate(t)
	return &out, nil
}

func (m *Memory) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id.String()]; !ok {
		return core.ErrTemplateNotFound
	}
	delete(m.templates, id.String())
	return nil
}

// nameTaken reports whether another template of the target uses name.
// Callers hold the lock.
func (m *Memory) nameTaken(targetKey, name, exceptID string) bool {
	for id, t := range m.templates {
		if id != exceptID && t.TargetKey == targetKey && t.Name == name {
			return true
		}
	}
	return false
}

// cloneTemplate copies the maps and slices a caller could mutate.
func cloneTemplate(t core.MappingTemplate) core.MappingTemplate {
	t.SourceColumns = append([]string(nil), t.SourceColumns...)
	t.Config = cloneConfig(t.Config)
	return t
}

func cloneConfig(c core.MappingConfig) core.MappingConfig {
	c.SourceColumns = append([]string(nil), c.SourceColumns...)
	c.Mapping = cloneMap(c.Mapping)
	c.ColumnTransforms = cloneMap(c.ColumnTransforms)
	if c.ActiveFilter != nil {
		f := *c.ActiveFilter
		if f.Groups != nil {
			f.Groups = make([]core.FilterGroup, len(c.ActiveFilter.Groups))
			for i, g := range c.ActiveFilter.Groups {
				g.Conditions = append([]core.Condition(nil), g.Conditions...)
				f.Groups[i] = g
			}
		}
		c.ActiveFilter = &f
	}
	return c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
