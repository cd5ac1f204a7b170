package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"lesson-observer-go/checklist"
	"lesson-observer-go/models"
)

// MemoryStore is an in-process Store with the same history semantics as
// RedisService. Results are deep-copied on the way in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	limit     int
	order     []string // newest first
	analyses  map[string][]byte
	templates map[models.Method][]byte
}

// NewMemoryStore creates a MemoryStore keeping at most limit analyses
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		limit:     limit,
		analyses:  make(map[string][]byte),
		templates: make(map[models.Method][]byte),
	}
}

func (m *MemoryStore) SaveAnalysis(_ context.Context, result models.EvaluationResult) error {
	if result.ID == "" {
		return errors.New("analysis ID cannot be empty")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis %s: %w", result.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == result.ID })
	m.order = append([]string{result.ID}, m.order...)
	m.analyses[result.ID] = data
	if len(m.order) > m.limit {
		for _, id := range m.order[m.limit:] {
			delete(m.analyses, id)
		}
		m.order = m.order[:m.limit]
	}
	return nil
}

func (m *MemoryStore) ListAnalyses(_ context.Context) ([]models.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]models.EvaluationResult, 0, len(m.order))
	for _, id := range m.order {
		var r models.EvaluationResult
		if err := json.Unmarshal(m.analyses[id], &r); err != nil {
			return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
		}
		results = append(results, r)
	}
	return results, nil
}

func (m *MemoryStore) GetAnalysis(_ context.Context, id string) (*models.EvaluationResult, error) {
	m.mu.RLock()
	data, ok := m.analyses[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var r models.EvaluationResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	return &r, nil
}

// ToggleChecklistItem holds the write lock across the read-modify-write
func (m *MemoryStore) ToggleChecklistItem(_ context.Context, id, itemID string) (*models.ChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.analyses[id]
	if !ok {
		return nil, ErrNotFound
	}
	var r models.EvaluationResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	item, updated, err := toggleItem(r, itemID)
	if err != nil {
		return nil, err
	}
	m.analyses[id] = updated
	return item, nil
}

func (m *MemoryStore) ClearHistory(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.analyses = make(map[string][]byte)
	return nil
}

func (m *MemoryStore) CountAnalyses(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.order)), nil
}

func (m *MemoryStore) SaveTemplate(_ context.Context, tpl checklist.Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to encode checklist for %s: %w", tpl.Method, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.Method] = data
	return nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, method models.Method) (*checklist.Template, error) {
	m.mu.RLock()
	data, ok := m.templates[method]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var tpl checklist.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to decode checklist for %s: %w", method, err)
	}
	return &tpl, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
