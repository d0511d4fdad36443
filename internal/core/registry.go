package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry   = make(map[string]TargetSchema)
	registryMu sync.RWMutex
)

// Register adds a target schema to the registry.
// Panics if a schema with the same key is already registered.
func Register(schema TargetSchema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.Key]; exists {
		panic(fmt.Sprintf("target already registered: %s", schema.Key))
	}
	registry[schema.Key] = schema
}

// Get returns a target schema by key.
// Returns false if not found.
func Get(key string) (TargetSchema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schema, ok := registry[key]
	return schema, ok
}

// All returns all registered target schemas.
// Sorted by group then by key for consistent ordering.
func All() []TargetSchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TargetSchema, 0, len(registry))
	for _, schema := range registry {
		result = append(result, schema)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Key < result[j].Key
	})

	return result
}

// ByGroup returns all target schemas for a specific group, sorted by key.
func ByGroup(group string) []TargetSchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []TargetSchema
	for _, schema := range registry {
		if schema.Group == group {
			result = append(result, schema)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// Groups returns all unique group names, sorted.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, schema := range registry {
		seen[schema.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// TargetCount returns the number of registered target schemas.
func TargetCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered target schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]TargetSchema)
}

// ValidateConfig checks cfg against schema and returns human-readable
// warnings: mappings onto columns the schema does not have, and required
// columns nothing maps to. Passthrough columns are not checked.
func ValidateConfig(cfg MappingConfig, schema TargetSchema) []string {
	var warnings []string

	mappedTargets := make(map[string]bool)
	keys := make([]string, 0, len(cfg.Mapping))
	for k := range cfg.Mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		target := strings.TrimSpace(cfg.Mapping[key])
		if target == "" {
			continue
		}
		mappedTargets[target] = true
		if _, ok := schema.Column(target); !ok {
			warnings = append(warnings, fmt.Sprintf("%s is mapped to %q, which is not a %s column", key, target, schema.Label))
		}
	}

	for _, c := range schema.Columns {
		if c.Required && !mappedTargets[c.Name] {
			warnings = append(warnings, fmt.Sprintf("required column %q is not mapped", c.Name))
		}
	}

	return warnings
}
