// Package semindex implements the semantic index: a store of
// (text, embedding, metadata) entries answering nearest-neighbor queries by
// cosine similarity.
//
// The scan is linear over all entries. That is a deliberate choice for the
// scale this engine targets; there is no approximate-nearest-neighbor
// structure behind it.
package semindex

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/engramlabs/engram-go/pkg/embedder"
	"github.com/engramlabs/engram-go/pkg/storage"
)

const (
	// DefaultQueryLimit is the result cap when a query passes limit <= 0.
	DefaultQueryLimit = 5

	// DefaultThreshold is the minimum similarity kept when a query passes
	// threshold <= 0.
	DefaultThreshold = 0.3

	// DefaultEmbedTimeout bounds each call to the embedding provider.
	DefaultEmbedTimeout = 10 * time.Second
)

// Entry is a single indexed vector.
//
// ID is shared with the memory record the entry indexes, when applicable.
// Entries are never mutated after creation.
type Entry struct {
	// ID is the entry identifier.
	ID string `json:"id"`

	// Text is the indexed text.
	Text string `json:"text"`

	// Embedding is the fixed-length vector for the text.
	Embedding []float64 `json:"embedding"`

	// Metadata is an opaque bag used to join hits back to their source.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the entry was indexed.
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a single query result.
type Hit struct {
	// ID is the matched entry's identifier.
	ID string

	// Score is the cosine similarity to the query, in [-1, 1].
	Score float64

	// Metadata is the matched entry's metadata bag.
	Metadata map[string]string
}

// Index stores embeddings and answers similarity queries.
//
// All mutations are serialized through one mutex and persist the full entry
// collection, so concurrent writers cannot lose each other's entries.
type Index struct {
	mu      sync.RWMutex
	entries []Entry

	provider embedder.Provider
	store    storage.SnapshotStore
	node     *snowflake.Node
	logger   *zap.Logger

	embedTimeout time.Duration
}

// Config contains configuration for creating an Index.
type Config struct {
	// Provider is the embedding backend. May be nil, in which case every
	// Index call reports "skipped" and every Query returns no hits.
	Provider embedder.Provider

	// Store persists the entry collection.
	Store storage.SnapshotStore

	// Node generates entry IDs when the caller does not supply one.
	Node *snowflake.Node

	// Logger is used for load warnings. Defaults to a no-op logger.
	Logger *zap.Logger

	// EmbedTimeout bounds each embedding call. Defaults to
	// DefaultEmbedTimeout.
	EmbedTimeout time.Duration
}

// NewIndex creates an Index and loads its persisted entries.
//
// A missing or unreadable snapshot starts the index empty; the engine
// favors availability over refusing to start.
func NewIndex(ctx context.Context, cfg *Config) (*Index, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.EmbedTimeout
	if timeout <= 0 {
		timeout = DefaultEmbedTimeout
	}

	idx := &Index{
		provider:     cfg.Provider,
		store:        cfg.Store,
		node:         cfg.Node,
		logger:       logger,
		embedTimeout: timeout,
	}

	data, err := cfg.Store.Load(ctx, storage.CollectionVectorEntries)
	if err != nil {
		logger.Warn("vector entries snapshot unreadable, starting empty", zap.Error(err))
		return idx, nil
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &idx.entries); err != nil {
			logger.Warn("vector entries snapshot corrupt, starting empty", zap.Error(err))
			idx.entries = nil
		}
	}
	return idx, nil
}

// Index embeds text and stores it under a generated ID.
//
// On provider failure it returns ok=false and no error: callers must treat
// that as "semantic indexing skipped", not as a failure of their own
// operation.
func (idx *Index) Index(ctx context.Context, text string, metadata map[string]string) (string, bool) {
	return idx.IndexWithID(ctx, idx.node.Generate().String(), text, metadata)
}

// IndexWithID embeds text and stores it under the caller's ID, typically the
// ID of the memory record the text belongs to.
func (idx *Index) IndexWithID(ctx context.Context, id, text string, metadata map[string]string) (string, bool) {
	embedding, err := idx.embed(ctx, text)
	if err != nil {
		idx.logger.Warn("semantic indexing skipped",
			zap.String("id", id),
			zap.Error(err),
		)
		return "", false
	}

	entry := Entry{
		ID:        id,
		Text:      text,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = append(idx.entries, entry)
	if err := idx.persistLocked(ctx); err != nil {
		// Roll back so the in-memory view matches what is durable.
		idx.entries = idx.entries[:len(idx.entries)-1]
		idx.logger.Warn("vector entry persistence failed", zap.String("id", id), zap.Error(err))
		return "", false
	}
	return id, true
}

// Query embeds the query text and returns entries with cosine similarity at
// or above threshold, best first, capped at limit.
func (idx *Index) Query(ctx context.Context, text string, limit int, threshold float64) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	queryEmbedding, err := idx.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var hits []Hit
	for _, entry := range idx.entries {
		score := cosineSimilarity(queryEmbedding, entry.Embedding)
		if score >= threshold {
			hits = append(hits, Hit{ID: entry.ID, Score: score, Metadata: entry.Metadata})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Remove deletes all entries stored under id and persists the collection.
// Returns whether anything was removed.
func (idx *Index) Remove(ctx context.Context, id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.entries[:0]
	removed := false
	for _, entry := range idx.entries {
		if entry.ID == id {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return false
	}
	idx.entries = kept

	if err := idx.persistLocked(ctx); err != nil {
		idx.logger.Warn("vector entry persistence failed", zap.String("id", id), zap.Error(err))
	}
	return true
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *Index) embed(ctx context.Context, text string) ([]float64, error) {
	if idx.provider == nil {
		return nil, ErrNoProvider
	}
	embedCtx, cancel := context.WithTimeout(ctx, idx.embedTimeout)
	defer cancel()
	return idx.provider.Embed(embedCtx, text)
}

func (idx *Index) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(idx.entries)
	if err != nil {
		return err
	}
	return idx.store.Save(ctx, storage.CollectionVectorEntries, data)
}
