package episode

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/dedup"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/embedding"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/persist"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/ratelimit"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/scheduler"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/summary"
)

type fixture struct {
	s     *store.SQLiteStore
	sched *scheduler.Scheduler
	sum   *Summarizer
}

func newFixture(t *testing.T, flags ratelimit.FlagStore) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	if flags == nil {
		flags = ratelimit.NewMemoryStore()
	}
	sched := scheduler.New(scheduler.Config{DrainTimeout: 5 * time.Second}, nil, nil)
	engine := persist.NewEngine(s, embedding.NewHashEmbedder(256), dedup.NewDetector(s, 0), nil, nil)
	sum := New(Config{MinUserMessages: 8, MinTotalMessages: 15, FlagTTL: time.Hour}, Deps{
		Messages:  s,
		Flags:     flags,
		Generator: &summary.ExtractiveGenerator{},
		Creator:   engine,
		Scheduler: sched,
	})
	return &fixture{s: s, sched: sched, sum: sum}
}

func (f *fixture) record(t *testing.T, conv string, role model.Role, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := f.s.AppendMessage(context.Background(), &model.Message{
			ConversationID: conv,
			UserID:         "u1",
			Role:           role,
			Content:        fmt.Sprintf("%s message %d about sourdough baking", role, i),
		})
		require.NoError(t, err)
	}
}

func (f *fixture) episodes(t *testing.T) []model.MemoryItem {
	t.Helper()
	items, err := f.s.ListItems(context.Background(), store.ListParams{UserID: "u1", Type: model.TypeEpisode})
	require.NoError(t, err)
	return items
}

func TestQualifies(t *testing.T) {
	s := New(Config{}, Deps{})
	cases := []struct {
		user, total int
		want        bool
	}{
		{0, 0, false},
		{7, 14, false},
		{8, 8, true},
		{1, 15, true},
		{7, 15, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.Qualifies(tc.user, tc.total), "user=%d total=%d", tc.user, tc.total)
	}
}

func TestOnResponseRecorded_BelowThreshold(t *testing.T) {
	f := newFixture(t, nil)
	f.record(t, "c1", model.RoleUser, 3)
	f.record(t, "c1", model.RoleAssistant, 3)

	assert.Nil(t, f.sum.OnResponseRecorded(context.Background(), "u1", "c1"))
	f.sched.Drain(context.Background())
	assert.Empty(t, f.episodes(t))
}

func TestOnResponseRecorded_CreatesOneEpisode(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.record(t, "c1", model.RoleUser, 8)
	f.record(t, "c1", model.RoleAssistant, 7)

	h := f.sum.OnResponseRecorded(ctx, "u1", "c1")
	require.NotNil(t, h)
	assert.Nil(t, f.sum.OnResponseRecorded(ctx, "u1", "c1"))
	require.NoError(t, h.Wait(ctx))

	f.record(t, "c1", model.RoleUser, 1)
	assert.Nil(t, f.sum.OnResponseRecorded(ctx, "u1", "c1"))
	f.sched.Drain(ctx)

	eps := f.episodes(t)
	require.Len(t, eps, 1)
	assert.Equal(t, model.TypeEpisode, eps[0].Type)
	assert.Equal(t, 1.0, eps[0].Confidence)
	assert.Equal(t, 0.6, eps[0].Importance)
	assert.Equal(t, "c1", eps[0].SourceConversationID)
	assert.Contains(t, eps[0].Content, "sourdough")
}

func TestOnResponseRecorded_TotalThreshold(t *testing.T) {
	f := newFixture(t, nil)
	f.record(t, "c1", model.RoleUser, 2)
	f.record(t, "c1", model.RoleAssistant, 13)

	h := f.sum.OnResponseRecorded(context.Background(), "u1", "c1")
	require.NotNil(t, h)
	require.NoError(t, h.Wait(context.Background()))
	assert.Len(t, f.episodes(t), 1)
}

type downFlags struct{}

func (downFlags) SetIfAbsent(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis unreachable")
}

func TestOnResponseRecorded_FlagStoreDown(t *testing.T) {
	f := newFixture(t, downFlags{})
	f.record(t, "c1", model.RoleUser, 10)

	assert.Nil(t, f.sum.OnResponseRecorded(context.Background(), "u1", "c1"))
	f.sched.Drain(context.Background())
	assert.Empty(t, f.episodes(t))
}

func TestOnResponseRecorded_SchedulerClosed(t *testing.T) {
	f := newFixture(t, nil)
	f.record(t, "c1", model.RoleUser, 10)
	f.sched.Drain(context.Background())

	assert.Nil(t, f.sum.OnResponseRecorded(context.Background(), "u1", "c1"))
	assert.Empty(t, f.episodes(t))
}
