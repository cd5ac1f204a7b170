package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"lesson-observer-go/checklist"
	"lesson-observer-go/config"
	"lesson-observer-go/logger"
	"lesson-observer-go/models"
)

const (
	analysesKey     = "analyses"   // List: analysis IDs, newest first
	analysisPrefix  = "analysis:"  // String prefix: analysis:{id} -> result JSON
	checklistPrefix = "checklist:" // String prefix: checklist:{method} -> template JSON

	maxTxRetries = 50
)

// RedisService handles history and template persistence in Redis
type RedisService struct {
	Client *redis.Client
	limit  int
}

// NewRedisService creates a RedisService keeping at most limit analyses
func NewRedisService(client *redis.Client, limit int) *RedisService {
	return &RedisService{
		Client: client,
		limit:  limit,
	}
}

func getAnalysisKey(id string) string {
	return analysisPrefix + id
}

func getChecklistKey(method models.Method) string {
	return checklistPrefix + string(method)
}

// --- Analysis Operations ---

// SaveAnalysis pushes the result to the front of the history and drops
// whatever falls beyond the limit
func (s *RedisService) SaveAnalysis(ctx context.Context, result models.EvaluationResult) error {
	if result.ID == "" {
		return errors.New("analysis ID cannot be empty")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis %s: %w", result.ID, err)
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, getAnalysisKey(result.ID), data, 0)
	pipe.LRem(ctx, analysesKey, 0, result.ID)
	pipe.LPush(ctx, analysesKey, result.ID)
	evicted := pipe.LRange(ctx, analysesKey, int64(s.limit), -1)
	pipe.LTrim(ctx, analysesKey, 0, int64(s.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Errorf("Error saving analysis %s: %v", result.ID, err)
		return fmt.Errorf("failed to save analysis to Redis: %w", err)
	}

	if ids := evicted.Val(); len(ids) > 0 {
		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, getAnalysisKey(id))
		}
		if err := s.Client.Del(ctx, keys...).Err(); err != nil {
			logger.Log.Warnf("Error deleting %d evicted analyses: %v", len(keys), err)
		}
	}
	logger.Log.Infof("Saved analysis %s for %s", result.ID, result.TeacherName)
	return nil
}

// GetAnalysis retrieves an analysis by its ID
func (s *RedisService) GetAnalysis(ctx context.Context, id string) (*models.EvaluationResult, error) {
	data, err := s.Client.Get(ctx, getAnalysisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		logger.Log.Errorf("Error getting analysis %s: %v", id, err)
		return nil, fmt.Errorf("failed to get analysis from Redis: %w", err)
	}

	var result models.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	return &result, nil
}

// ListAnalyses retrieves the history, newest first
func (s *RedisService) ListAnalyses(ctx context.Context) ([]models.EvaluationResult, error) {
	ids, err := s.Client.LRange(ctx, analysesKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.EvaluationResult{}, nil
		}
		logger.Log.Errorf("Error getting analysis IDs: %v", err)
		return nil, fmt.Errorf("failed to get analysis IDs from Redis: %w", err)
	}

	results := make([]models.EvaluationResult, 0, len(ids))
	for _, id := range ids {
		result, err := s.GetAnalysis(ctx, id)
		if err != nil {
			// Log the error but continue with the rest of the history
			logger.Log.Warnf("Error fetching analysis %s: %v", id, err)
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// ToggleChecklistItem flips an item inside a WATCH transaction, retrying
// when another writer touches the analysis in between
func (s *RedisService) ToggleChecklistItem(ctx context.Context, id, itemID string) (*models.ChecklistItem, error) {
	key := getAnalysisKey(id)
	var toggled *models.ChecklistItem

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var result models.EvaluationResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("failed to decode analysis %s: %w", id, err)
		}
		item, updated, err := toggleItem(result, itemID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		if err == nil {
			toggled = item
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.Client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrItemNotFound) {
				logger.Log.Errorf("Error toggling item %s of analysis %s: %v", itemID, id, err)
			}
			return nil, err
		}
		return toggled, nil
	}
	return nil, fmt.Errorf("toggle item %s of analysis %s: too much contention", itemID, id)
}

// ClearHistory removes every stored analysis
func (s *RedisService) ClearHistory(ctx context.Context) error {
	ids, err := s.Client.LRange(ctx, analysesKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get analysis IDs from Redis: %w", err)
	}
	keys := []string{analysesKey}
	for _, id := range ids {
		keys = append(keys, getAnalysisKey(id))
	}
	if err := s.Client.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Errorf("Error clearing history: %v", err)
		return fmt.Errorf("failed to clear history in Redis: %w", err)
	}
	logger.Log.Infof("Cleared %d analyses from history", len(ids))
	return nil
}

// CountAnalyses returns the history length
func (s *RedisService) CountAnalyses(ctx context.Context) (int64, error) {
	n, err := s.Client.LLen(ctx, analysesKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return n, nil
}

// --- Checklist Operations ---

// SaveTemplate stores a checklist override for the template's method
func (s *RedisService) SaveTemplate(ctx context.Context, tpl checklist.Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to encode checklist for %s: %w", tpl.Method, err)
	}
	if err := s.Client.Set(ctx, getChecklistKey(tpl.Method), data, 0).Err(); err != nil {
		logger.Log.Errorf("Error saving checklist for %s: %v", tpl.Method, err)
		return fmt.Errorf("failed to save checklist to Redis: %w", err)
	}
	logger.Log.Infof("Saved checklist override for %s (%d items)", tpl.Method, len(tpl.Items()))
	return nil
}

// GetTemplate retrieves the checklist override for a method, or nil
func (s *RedisService) GetTemplate(ctx context.Context, method models.Method) (*checklist.Template, error) {
	data, err := s.Client.Get(ctx, getChecklistKey(method)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not overridden
		}
		return nil, fmt.Errorf("failed to get checklist from Redis: %w", err)
	}
	var tpl checklist.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to decode checklist for %s: %w", method, err)
	}
	return &tpl, nil
}

// Ping checks the Redis connection
func (s *RedisService) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// --- Utility ---

// InitializeRedisClient creates and tests a Redis client connection
func InitializeRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", cfg.Addr, err)
	}

	logger.Log.Infof("Successfully connected to Redis %s DB %d", cfg.Addr, cfg.DB)
	return rdb, nil
}
