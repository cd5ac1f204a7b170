package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-observer-go/checklist"
	"lesson-observer-go/config"
	"lesson-observer-go/models"
)

func result(id string) models.EvaluationResult {
	return models.EvaluationResult{
		ID:            id,
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Method:        models.MethodAdults,
		TeacherName:   "Ana",
		BookAndLesson: "Book 2 - Lesson 4",
		Checklist: []models.ChecklistItem{
			{ID: "a1", Category: "Warm-up", Text: "Greets students", Status: models.StatusCompleted},
		},
		Transcription: "Teacher: Hello",
	}
}

func ids(results []models.EvaluationResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

// testStore runs the shared Store behavior against a fresh store with a
// history limit of 3.
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("newest first with eviction", func(t *testing.T) {
		s := newStore(t)
		for i := 1; i <= 5; i++ {
			require.NoError(t, s.SaveAnalysis(ctx, result(fmt.Sprintf("r%d", i))))
		}
		list, err := s.ListAnalyses(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"r5", "r4", "r3"}, ids(list))

		n, err := s.CountAnalyses(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		_, err = s.GetAnalysis(ctx, "r1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("resave moves to front", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.SaveAnalysis(ctx, result(id)))
		}
		require.NoError(t, s.SaveAnalysis(ctx, result("a")))
		list, err := s.ListAnalyses(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "b"}, ids(list))
	})

	t.Run("empty id rejected", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.SaveAnalysis(ctx, result("")))
	})

	t.Run("get and toggle", func(t *testing.T) {
		s := newStore(t)
		r := result("x")
		r.Checklist = append(r.Checklist, models.ChecklistItem{ID: "a2", Category: "Practice", Text: "Pair work", Status: models.StatusPartial})
		require.NoError(t, s.SaveAnalysis(ctx, r))

		got, err := s.GetAnalysis(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "Ana", got.TeacherName)
		assert.True(t, got.CreatedAt.Equal(r.CreatedAt))

		item, err := s.ToggleChecklistItem(ctx, "x", "a1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusNotDone, item.Status)
		item, err = s.ToggleChecklistItem(ctx, "x", "a2")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, item.Status)

		again, err := s.GetAnalysis(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, models.StatusNotDone, again.Checklist[0].Status)
		assert.Equal(t, models.StatusCompleted, again.Checklist[1].Status)

		_, err = s.ToggleChecklistItem(ctx, "missing", "a1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ToggleChecklistItem(ctx, "x", "zz")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("concurrent toggles", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveAnalysis(ctx, result("x")))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ToggleChecklistItem(ctx, "x", "a1")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// an even number of flips lands back on the saved status
		got, err := s.GetAnalysis(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Checklist[0].Status)
	})

	t.Run("clear history", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveAnalysis(ctx, result("x")))
		require.NoError(t, s.ClearHistory(ctx))

		list, err := s.ListAnalyses(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
		_, err = s.GetAnalysis(ctx, "x")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("templates", func(t *testing.T) {
		s := newStore(t)
		tpl, err := s.GetTemplate(ctx, models.MethodTeens)
		require.NoError(t, err)
		assert.Nil(t, tpl)

		custom := checklist.Template{
			Method: models.MethodTeens,
			Sections: []checklist.Section{{
				ID: "warmup", Category: "Warm-up",
				Items: []checklist.Item{{ID: "w1", Text: "Reviews homework"}},
			}},
		}
		require.NoError(t, s.SaveTemplate(ctx, custom))

		tpl, err = s.GetTemplate(ctx, models.MethodTeens)
		require.NoError(t, err)
		require.NotNil(t, tpl)
		assert.Equal(t, custom, *tpl)

		assert.Error(t, s.SaveTemplate(ctx, checklist.Template{Method: models.MethodKids}))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, func(*testing.T) Store { return NewMemoryStore(3) })
}

func TestMemoryStoreCopiesResults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	r := result("x")
	require.NoError(t, s.SaveAnalysis(ctx, r))

	r.Checklist[0].Status = models.StatusNotDone
	got, err := s.GetAnalysis(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Checklist[0].Status)
}

// TestRedisService needs a live server; set REDIS_TEST_ADDR to run it, or
// use the integration build tag to start one in a container.
// Database 15 is flushed before each case.
func TestRedisService(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := InitializeRedisClient(ctx, config.RedisConfig{Addr: addr, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	testStore(t, func(t *testing.T) Store {
		require.NoError(t, client.FlushDB(ctx).Err())
		return NewRedisService(client, 3)
	})
}
