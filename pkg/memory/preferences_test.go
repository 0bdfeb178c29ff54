package memory_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/memory"
	"github.com/engramlabs/engram-go/pkg/storage"
	filestore "github.com/engramlabs/engram-go/pkg/storage/file"
)

func TestLearnPreferenceReinforcesSameValue(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	pref, err := store.LearnPreference(ctx, "editor", "vim", "observed in session")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, pref.Confidence, 1e-9)

	pref, err = store.LearnPreference(ctx, "editor", "vim", "observed again")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, pref.Confidence, 1e-9)

	pref, err = store.LearnPreference(ctx, "editor", "vim", "observed again")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, pref.Confidence, 1e-9)
}

func TestLearnPreferenceConfidenceCapsAtOne(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := store.LearnPreference(ctx, "format", "markdown", "test")
		require.NoError(t, err)
	}

	pref, ok := store.GetPreference("format")
	require.True(t, ok)
	assert.Equal(t, 1.0, pref.Confidence)
}

func TestLearnPreferenceConflictResets(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.LearnPreference(ctx, "editor", "vim", "test")
		require.NoError(t, err)
	}

	pref, err := store.LearnPreference(ctx, "editor", "emacs", "changed their mind")
	require.NoError(t, err)
	assert.Equal(t, "emacs", pref.Value)
	assert.InDelta(t, 0.6, pref.Confidence, 1e-9)
}

func TestLearnPreferenceStructuredValue(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	value := []string{"vim", "emacs"}
	pref, err := store.LearnPreference(ctx, "editors", value, "test")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, pref.Confidence, 1e-9)

	// Slices and maps are not comparable with ==; re-observing one must
	// still reinforce rather than crash or reset.
	pref, err = store.LearnPreference(ctx, "editors", []string{"vim", "emacs"}, "test")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, pref.Confidence, 1e-9)

	pref, err = store.LearnPreference(ctx, "editors", []string{"emacs", "vim"}, "test")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, pref.Confidence, 1e-9)
}

func TestLearnPreferenceStructuredValueSurvivesReload(t *testing.T) {
	snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer snap.Close()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, &memory.Config{Store: snap, Node: node})
	require.NoError(t, err)

	value := map[string]any{"indent": 4, "tabs": false}
	_, err = store.LearnPreference(ctx, "formatting", value, "test")
	require.NoError(t, err)
	_, err = store.LearnPreference(ctx, "formatting", value, "test")
	require.NoError(t, err)

	// The snapshot round-trip changes dynamic types (int becomes
	// float64); an identical re-observation must still reinforce.
	reloaded, err := memory.NewStore(ctx, &memory.Config{Store: snap, Node: node})
	require.NoError(t, err)

	pref, err := reloaded.LearnPreference(ctx, "formatting", value, "test")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, pref.Confidence, 1e-9)
}

func TestGetPreferenceWithholdsLowConfidence(t *testing.T) {
	// Confidence at or below 0.5 means "not yet a preference", even
	// though a value is stored. Seed one below the floor via a snapshot,
	// since the learning API never writes one that low.
	snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer snap.Close()

	ctx := context.Background()
	seed := `{"theme":{"key":"theme","value":"dark","confidence":0.5,"updated_at":"2026-01-01T00:00:00Z"}}`
	require.NoError(t, snap.Save(ctx, storage.CollectionPreferences, []byte(seed)))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	store, err := memory.NewStore(ctx, &memory.Config{Store: snap, Node: node})
	require.NoError(t, err)

	_, ok := store.GetPreference("theme")
	assert.False(t, ok)

	_, ok = store.GetPreference("never_learned")
	assert.False(t, ok)

	// One more same-value observation lifts it above the floor.
	_, err = store.LearnPreference(ctx, "theme", "dark", "test")
	require.NoError(t, err)
	pref, ok := store.GetPreference("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", pref.Value)
}

func TestPreferencesListsEstablishedOnly(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	_, err := store.LearnPreference(ctx, "tone", "casual", "test")
	require.NoError(t, err)
	_, err = store.LearnPreference(ctx, "language", "en", "test")
	require.NoError(t, err)

	prefs := store.Preferences()
	assert.Len(t, prefs, 2)
}
