package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/memory"
	"github.com/engramlabs/engram-go/pkg/semindex"
	"github.com/engramlabs/engram-go/pkg/storage"
	filestore "github.com/engramlabs/engram-go/pkg/storage/file"
)

// axisProvider maps keyword groups to basis vectors so cosine similarity
// is 1.0 between texts from the same group (including synonyms that share
// no literal text) and 0.0 otherwise.
type axisProvider struct{}

var axes = [][]string{
	{"python", "snake"},
	{"golang", "gopher"},
	{"coffee", "espresso"},
}

func (axisProvider) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, len(axes)+1)
	lower := strings.ToLower(text)
	matched := false
	for i, group := range axes {
		for _, keyword := range group {
			if strings.Contains(lower, keyword) {
				vec[i] = 1
				matched = true
				break
			}
		}
	}
	if !matched {
		vec[len(axes)] = 1
	}
	return vec, nil
}

func (p axisProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, _ := p.Embed(ctx, text)
		out[i] = vec
	}
	return out, nil
}

func (axisProvider) Dimensions() int { return len(axes) + 1 }
func (axisProvider) Close() error    { return nil }

func newTestStore(t *testing.T, semantic bool) *memory.Store {
	t.Helper()

	snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { snap.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var idx *semindex.Index
	if semantic {
		idx, err = semindex.NewIndex(context.Background(), &semindex.Config{
			Provider: axisProvider{},
			Store:    snap,
			Node:     node,
		})
		require.NoError(t, err)
	}

	store, err := memory.NewStore(context.Background(), &memory.Config{
		Store: snap,
		Index: idx,
		Node:  node,
	})
	require.NoError(t, err)
	return store
}

func TestRememberDefaults(t *testing.T) {
	store := newTestStore(t, false)

	rec, err := store.Remember(context.Background(), memory.Candidate{
		Content: "user prefers tabs over spaces",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, memory.KindFact, rec.Kind)
	assert.Equal(t, 0.7, rec.Confidence)
	assert.Equal(t, 1.0, rec.SuccessRate)
	assert.Equal(t, 0.7, rec.Reliability)
	assert.Equal(t, memory.SensitivityPublic, rec.Sensitivity)
	assert.Equal(t, memory.SourceInteraction, rec.Source)
	assert.False(t, rec.HasPII)
}

func TestRememberRejectsEmptyContent(t *testing.T) {
	store := newTestStore(t, false)

	_, err := store.Remember(context.Background(), memory.Candidate{Content: "   "})
	assert.Error(t, err)
}

func TestRememberRedactsPII(t *testing.T) {
	store := newTestStore(t, false)

	rec, err := store.Remember(context.Background(), memory.Candidate{
		Content: "user email is sam@example.com",
	})
	require.NoError(t, err)

	assert.True(t, rec.HasPII)
	assert.Contains(t, rec.Content, "[EMAIL]")
	assert.NotContains(t, rec.Content, "sam@example.com")
}

func TestRememberMergesNearDuplicates(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	first, err := store.Remember(ctx, memory.Candidate{
		Content: "the deploy script lives in the tools repo",
	})
	require.NoError(t, err)

	second, err := store.Remember(ctx, memory.Candidate{
		Content: "The deploy script lives in the tools repo",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, 0.8, second.Confidence, 1e-9)
	assert.Equal(t, 1, second.UseCount)
	assert.Equal(t, 1, store.Len())
}

func TestRememberConfidenceCapsAtOne(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := store.Remember(ctx, memory.Candidate{
			Content: "retry flaky network calls three times",
		})
		require.NoError(t, err)
	}

	rec, err := store.Remember(ctx, memory.Candidate{
		Content: "retry flaky network calls three times",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Confidence)
}

func TestRememberDistinctContentCreatesNewRecords(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	_, err := store.Remember(ctx, memory.Candidate{Content: "user likes espresso"})
	require.NoError(t, err)
	_, err = store.Remember(ctx, memory.Candidate{Content: "builds run on the CI cluster"})
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
}

func TestRecallExactSubstringOutranksPartial(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	_, err := store.Remember(ctx, memory.Candidate{Content: "User's name is Sam"})
	require.NoError(t, err)
	_, err = store.Remember(ctx, memory.Candidate{Content: "Sam asked about the name field once"})
	require.NoError(t, err)

	results, err := store.Recall(ctx, "name is Sam", memory.RecallOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "User's name is Sam", results[0].Content)
}

func TestRecallHonorsLimit(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := store.Remember(ctx, memory.Candidate{
			Content: "release step " + strings.Repeat("x", i+1),
		})
		require.NoError(t, err)
	}

	results, err := store.Recall(ctx, "release", memory.RecallOptions{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, results, 4)

	results, err = store.Recall(ctx, "release", memory.RecallOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), memory.DefaultRecallLimit)
}

func TestRecallIsDeterministic(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	for _, content := range []string{
		"database migrations run at midnight",
		"the database password rotates weekly",
		"midnight cron jobs send alerts",
	} {
		_, err := store.Remember(ctx, memory.Candidate{Content: content})
		require.NoError(t, err)
	}

	first, err := store.Recall(ctx, "database midnight", memory.RecallOptions{})
	require.NoError(t, err)
	second, err := store.Recall(ctx, "database midnight", memory.RecallOptions{})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestRecallTracksUsage(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	rec, err := store.Remember(ctx, memory.Candidate{Content: "staging mirrors production config"})
	require.NoError(t, err)
	require.Equal(t, 0, rec.UseCount)

	results, err := store.Recall(ctx, "staging", memory.RecallOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].UseCount)
	assert.False(t, results[0].LastUsedAt.IsZero())
}

func TestRecallFiltersByKindAndCategory(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	_, err := store.Remember(ctx, memory.Candidate{
		Kind: memory.KindFact, Category: "infra", Content: "deploy uses blue-green switchover",
	})
	require.NoError(t, err)
	_, err = store.Remember(ctx, memory.Candidate{
		Kind: memory.KindCorrection, Category: "workflow", Content: "deploy only after review approval",
	})
	require.NoError(t, err)

	results, err := store.Recall(ctx, "deploy", memory.RecallOptions{Kind: memory.KindCorrection})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, memory.KindCorrection, results[0].Kind)

	results, err = store.Recall(ctx, "deploy", memory.RecallOptions{Category: "infra"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "infra", results[0].Category)
}

func TestRecallSemanticFindsKeywordMisses(t *testing.T) {
	store := newTestStore(t, true)
	ctx := context.Background()

	rec, err := store.Remember(ctx, memory.Candidate{Content: "gopher services need plumbing"})
	require.NoError(t, err)
	store.WaitIndexing()

	// No keyword overlap with the stored content; only the embedding
	// axis matches.
	results, err := store.Recall(ctx, "golang", memory.RecallOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, rec.ID, results[0].ID)
}

func TestForget(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	rec, err := store.Remember(ctx, memory.Candidate{Content: "temporary workaround for the cache bug"})
	require.NoError(t, err)

	existed, err := store.Forget(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 0, store.Len())

	existed, err = store.Forget(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRemoveExpired(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := store.Remember(ctx, memory.Candidate{
		Content:   "session token refreshed",
		ExpiresAt: &past,
	})
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	keeper, err := store.Remember(ctx, memory.Candidate{
		Content:   "nightly backup finished",
		ExpiresAt: &future,
	})
	require.NoError(t, err)

	removed, err := store.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
	assert.NotNil(t, store.Get(keeper.ID))

	// A second sweep finds nothing; sweeps are idempotent.
	removed, err = store.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRecordsSurviveReload(t *testing.T) {
	snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer snap.Close()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := memory.NewStore(ctx, &memory.Config{Store: snap, Node: node})
	require.NoError(t, err)

	rec, err := first.Remember(ctx, memory.Candidate{Content: "the linker flag order matters"})
	require.NoError(t, err)

	second, err := memory.NewStore(ctx, &memory.Config{Store: snap, Node: node})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Len())
	loaded := second.Get(rec.ID)
	require.NotNil(t, loaded)
	assert.Equal(t, rec.Content, loaded.Content)
}

// brokenStore delegates reads to a real store but fails every Save.
type brokenStore struct {
	storage.SnapshotStore
}

func (brokenStore) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestRememberRollsBackOnPersistenceFailure(t *testing.T) {
	snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer snap.Close()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, &memory.Config{Store: brokenStore{snap}, Node: node})
	require.NoError(t, err)

	_, err = store.Remember(ctx, memory.Candidate{Content: "the deploy script needs sudo"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPersistence))
	assert.Equal(t, 0, store.Len())
}

func TestNewStoreFailsOpenOnCorruptSnapshot(t *testing.T) {
	snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer snap.Close()

	ctx := context.Background()
	require.NoError(t, snap.Save(ctx, storage.CollectionMemories, []byte("{not json")))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store, err := memory.NewStore(ctx, &memory.Config{Store: snap, Node: node})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	// The store is usable and overwrites the bad snapshot on first write.
	rec, err := store.Remember(ctx, memory.Candidate{Content: "rebuilt after corruption"})
	require.NoError(t, err)

	reloaded, err := memory.NewStore(ctx, &memory.Config{Store: snap, Node: node})
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
	assert.NotNil(t, reloaded.Get(rec.ID))
}

func TestStats(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	_, err := store.Remember(ctx, memory.Candidate{Kind: memory.KindFact, Category: "infra", Content: "primary region is eu-west"})
	require.NoError(t, err)
	_, err = store.Remember(ctx, memory.Candidate{Kind: memory.KindLearning, Category: "infra", Content: "failover drills run monthly"})
	require.NoError(t, err)
	_, err = store.LearnPreference(ctx, "tone", "formal", "test")
	require.NoError(t, err)

	stats := store.Stats()
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.ByKind[memory.KindFact])
	assert.Equal(t, 1, stats.ByKind[memory.KindLearning])
	assert.Equal(t, 2, stats.ByCategory["infra"])
	assert.Equal(t, 1, stats.Preferences)
}
