package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lesson-observer-go/checklist"
	"lesson-observer-go/models"
)

var (
	// ErrNotFound is returned when an analysis id is unknown
	ErrNotFound = errors.New("analysis not found")
	// ErrItemNotFound is returned when a checklist item id is unknown
	ErrItemNotFound = errors.New("checklist item not found")
)

var (
	_ Store = (*RedisService)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Store keeps the most recent analyses and per-method checklist overrides
type Store interface {
	// SaveAnalysis stores a result as the newest history entry, evicting
	// entries beyond the history limit
	SaveAnalysis(ctx context.Context, result models.EvaluationResult) error
	// ListAnalyses returns the history, newest first
	ListAnalyses(ctx context.Context) ([]models.EvaluationResult, error)
	GetAnalysis(ctx context.Context, id string) (*models.EvaluationResult, error)
	// ToggleChecklistItem flips one item's status atomically and returns the
	// updated item
	ToggleChecklistItem(ctx context.Context, id, itemID string) (*models.ChecklistItem, error)
	ClearHistory(ctx context.Context) error
	CountAnalyses(ctx context.Context) (int64, error)

	SaveTemplate(ctx context.Context, tpl checklist.Template) error
	// GetTemplate returns nil when no override exists for the method
	GetTemplate(ctx context.Context, method models.Method) (*checklist.Template, error)
	Ping(ctx context.Context) error
}

// toggleItem flips itemID in result and returns the item and the re-encoded
// result
func toggleItem(result models.EvaluationResult, itemID string) (*models.ChecklistItem, []byte, error) {
	item := result.ChecklistItemByID(itemID)
	if item == nil {
		return nil, nil, ErrItemNotFound
	}
	item.Status = item.Status.Toggle()
	data, err := json.Marshal(result)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode analysis %s: %w", result.ID, err)
	}
	out := *item
	return &out, data, nil
}
