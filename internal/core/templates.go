package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TemplateMatchThreshold is the minimum score for a template to be considered a match.
const TemplateMatchThreshold = 0.7

var (
	// ErrTemplateNotFound is returned by stores for unknown template IDs.
	ErrTemplateNotFound = errors.New("mapping template not found")
	// ErrTemplateExists is returned when a target already has a template with that name.
	ErrTemplateExists = errors.New("mapping template already exists")
	// ErrNoTemplateStore is returned when the service has no template store.
	ErrNoTemplateStore = errors.New("saved mappings are not configured")
)

// MappingTemplate is a named, saved MappingConfig.
type MappingTemplate struct {
	ID            string        `json:"id"`
	TargetKey     string        `json:"targetKey"`
	Name          string        `json:"name"`
	Config        MappingConfig `json:"config"`
	SourceColumns []string      `json:"sourceColumns"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TemplateMatch is a saved template scored against a source header.
type TemplateMatch struct {
	Template   MappingTemplate `json:"template"`
	MatchScore float64         `json:"matchScore"`
}

// TemplateStore persists mapping templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t MappingTemplate) (*MappingTemplate, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*MappingTemplate, error)
	ListTemplates(ctx context.Context, targetKey string) ([]MappingTemplate, error)
	UpdateTemplate(ctx context.Context, t MappingTemplate) (*MappingTemplate, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

// CreateTemplate saves cfg under name for a target.
func (s *Service) CreateTemplate(ctx context.Context, targetKey, name string, cfg MappingConfig) (*MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrNoTemplateStore
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if _, ok := Get(targetKey); !ok {
		return nil, fmt.Errorf("unknown target: %s", targetKey)
	}

	cfg.TargetKey = targetKey
	now := time.Now().UTC()
	t, err := s.templates.CreateTemplate(ctx, MappingTemplate{
		ID:            uuid.New().String(),
		TargetKey:     targetKey,
		Name:          name,
		Config:        cfg,
		SourceColumns: cfg.SourceColumns,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, ErrTemplateExists) {
			return nil, fmt.Errorf("template '%s' already exists for this target: %w", name, err)
		}
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// GetTemplate retrieves a template by ID.
func (s *Service) GetTemplate(ctx context.Context, id string) (*MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrNoTemplateStore
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid template ID: %w", err)
	}

	t, err := s.templates.GetTemplate(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns all templates for a target, newest first.
func (s *Service) ListTemplates(ctx context.Context, targetKey string) ([]MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrNoTemplateStore
	}
	list, err := s.templates.ListTemplates(ctx, targetKey)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// UpdateTemplate renames a template and replaces its configuration.
func (s *Service) UpdateTemplate(ctx context.Context, id, name string, cfg MappingConfig) (*MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrNoTemplateStore
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("template name is required")
	}

	existing, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg.TargetKey = existing.TargetKey
	existing.Name = name
	existing.Config = cfg
	existing.SourceColumns = cfg.SourceColumns
	existing.UpdatedAt = time.Now().UTC()

	t, err := s.templates.UpdateTemplate(ctx, *existing)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	if s.templates == nil {
		return ErrNoTemplateStore
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid template ID: %w", err)
	}
	return s.templates.DeleteTemplate(ctx, uid)
}

// MatchTemplates finds templates whose saved source columns match headers.
func (s *Service) MatchTemplates(ctx context.Context, targetKey string, headers []string) ([]TemplateMatch, error) {
	templates, err := s.ListTemplates(ctx, targetKey)
	if err != nil {
		return nil, err
	}

	var matches []TemplateMatch
	for _, t := range templates {
		score := matchTemplateHeaders(headers, t.SourceColumns)
		if score >= TemplateMatchThreshold {
			matches = append(matches, TemplateMatch{Template: t, MatchScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})

	return matches, nil
}

// matchTemplateHeaders is the share of template headers present in headers,
// compared trimmed and case-insensitively.
func matchTemplateHeaders(headers, templateHeaders []string) float64 {
	if len(templateHeaders) == 0 {
		return 0
	}

	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[strings.ToLower(strings.TrimSpace(h))] = true
	}

	matched := 0
	for _, h := range templateHeaders {
		if have[strings.ToLower(strings.TrimSpace(h))] {
			matched++
		}
	}

	return float64(matched) / float64(len(templateHeaders))
}
