package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/privacy"
	"github.com/engramlabs/engram-go/pkg/semindex"
	"github.com/engramlabs/engram-go/pkg/storage"
)

const (
	// DefaultRecallLimit caps Recall results when no limit is given.
	DefaultRecallLimit = 10

	// MaxReflections bounds the reflection log.
	MaxReflections = 100

	// duplicateOverlapThreshold is the token-overlap ratio above which two
	// contents are treated as the same knowledge.
	duplicateOverlapThreshold = 0.8

	// Default field values for new records.
	defaultConfidence  = 0.7
	defaultReliability = 0.7

	// Keyword scoring weights.
	exactSubstringBonus = 10.0
	tokenContentBonus   = 2.0
	tokenTagBonus       = 3.0

	// Semantic fusion weights: a semantic hit adds semanticExistingBonus
	// to a record that already scored on keywords, or enters with
	// semanticBaselineScore otherwise.
	semanticExistingBonus = 15.0
	semanticBaselineScore = 10.0

	// semanticQueryLimit caps the semantic phase of Recall.
	semanticQueryLimit = 5
)

// Store is the record-of-truth for agent knowledge.
//
// All mutating calls are serialized through one mutex and rewrite the
// affected collection's snapshot in full, so concurrent mutations cannot
// silently lose each other's updates.
type Store struct {
	mu          sync.RWMutex
	records     []*Record
	preferences map[string]*Preference
	patterns    []*Pattern
	tasks       map[string]*TaskKnowledge
	reflections []*Reflection

	store  storage.SnapshotStore
	index  *semindex.Index
	node   *snowflake.Node
	logger *zap.Logger

	// indexWG tracks in-flight background indexing so callers (tests in
	// particular) can wait for it deterministically instead of sleeping.
	indexWG sync.WaitGroup
}

// Config contains configuration for creating a Store.
type Config struct {
	// Store persists the memory collections.
	Store storage.SnapshotStore

	// Index is the semantic index consulted by Recall. May be nil, in
	// which case recall is keyword-only.
	Index *semindex.Index

	// Node generates record IDs.
	Node *snowflake.Node

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewStore creates a Store and loads its persisted collections.
// Missing or corrupt snapshots load as empty collections.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		preferences: make(map[string]*Preference),
		tasks:       make(map[string]*TaskKnowledge),
		store:       cfg.Store,
		index:       cfg.Index,
		node:        cfg.Node,
		logger:      logger,
	}

	s.loadCollection(ctx, storage.CollectionMemories, &s.records)
	s.loadCollection(ctx, storage.CollectionPreferences, &s.preferences)
	s.loadCollection(ctx, storage.CollectionPatterns, &s.patterns)
	s.loadCollection(ctx, storage.CollectionTaskKnowledge, &s.tasks)
	s.loadCollection(ctx, storage.CollectionReflections, &s.reflections)
	if s.preferences == nil {
		s.preferences = make(map[string]*Preference)
	}
	if s.tasks == nil {
		s.tasks = make(map[string]*TaskKnowledge)
	}
	return s, nil
}

// loadCollection unmarshals one snapshot, failing open to empty on any error.
func (s *Store) loadCollection(ctx context.Context, collection string, dst any) {
	data, err := s.store.Load(ctx, collection)
	if err != nil {
		s.logger.Warn("snapshot unreadable, starting empty",
			zap.String("collection", collection), zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("snapshot corrupt, starting empty",
			zap.String("collection", collection), zap.Error(err))
	}
}

// Remember stores a piece of knowledge.
//
// Content is run through the privacy filter first. If an existing record is
// a near-duplicate of the redacted content, that record is strengthened
// (confidence +0.1 capped at 1.0, use count incremented) and returned;
// otherwise a new record is created and persisted. On persistence failure
// the in-memory addition is rolled back and the error surfaced.
//
// Semantic indexing of the redacted content happens in the background after
// the record is durable; a provider failure there degrades the record to
// keyword-only recall and is otherwise ignored. Use WaitIndexing to await
// completion.
func (s *Store) Remember(ctx context.Context, c Candidate) (*Record, error) {
	if strings.TrimSpace(c.Content) == "" {
		return nil, core.NewEngineError("Remember", core.ErrInvalidInput)
	}

	scan := privacy.Scan(c.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if existing := s.findSimilarLocked(scan.Redacted); existing != nil {
		existing.Confidence = clamp01(existing.Confidence + 0.1)
		existing.UseCount++
		existing.UpdatedAt = now
		if err := s.persistRecordsLocked(ctx); err != nil {
			return nil, core.NewEngineError("Remember", err)
		}
		return existing, nil
	}

	rec := &Record{
		ID:          s.node.Generate().String(),
		Kind:        c.Kind,
		Category:    c.Category,
		Content:     scan.Redacted,
		Context:     c.Context,
		Confidence:  c.Confidence,
		SuccessRate: c.SuccessRate,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tags:        append([]string(nil), c.Tags...),
		Source:      c.Source,
		ExpiresAt:   c.ExpiresAt,
		Sensitivity: c.Sensitivity,
		OriginID:    c.OriginID,
		Reliability: c.Reliability,
		HasPII:      scan.HasPII,
	}
	if rec.Kind == "" {
		rec.Kind = KindFact
	}
	if rec.Confidence == 0 {
		rec.Confidence = defaultConfidence
	}
	if rec.SuccessRate == 0 {
		rec.SuccessRate = 1.0
	}
	if rec.Reliability == 0 {
		rec.Reliability = defaultReliability
	}
	if rec.Sensitivity == "" {
		rec.Sensitivity = SensitivityPublic
	}
	if rec.Source == "" {
		rec.Source = SourceInteraction
	}

	s.records = append(s.records, rec)
	if err := s.persistRecordsLocked(ctx); err != nil {
		s.records = s.records[:len(s.records)-1]
		return nil, core.NewEngineError("Remember", err)
	}

	s.scheduleIndexing(rec)
	return rec, nil
}

// scheduleIndexing kicks off background semantic indexing for a record.
func (s *Store) scheduleIndexing(rec *Record) {
	if s.index == nil {
		return
	}
	meta := map[string]string{
		"record_id": rec.ID,
		"kind":      string(rec.Kind),
		"category":  rec.Category,
	}
	content := rec.Content

	s.indexWG.Add(1)
	go func() {
		defer s.indexWG.Done()
		// The originating call has already returned; index against a
		// fresh context so its cancellation cannot leak in here.
		if _, ok := s.index.IndexWithID(context.Background(), rec.ID, content, meta); !ok {
			s.logger.Warn("record not semantically indexed, keyword recall only",
				zap.String("id", rec.ID))
		}
	}()
}

// WaitIndexing blocks until all background indexing scheduled so far has
// finished. Intended for shutdown and for tests that need deterministic
// index state.
func (s *Store) WaitIndexing() {
	s.indexWG.Wait()
}

// Recall returns the records most relevant to query, best first.
//
// Scoring is hybrid. Keyword phase: +10 for the full lowercased query as a
// content substring, +2 per query token found in the content, +3 per query
// token found in a tag, all multiplied by confidence*successRate. Semantic
// phase: each semantic hit adds +15 to an already-scored record or enters
// fresh at 10. Results are capped at opts.Limit (default 10).
//
// Every returned record has its use count incremented and last-used time
// refreshed: usage is itself a retrieval signal.
func (s *Store) Recall(ctx context.Context, query string, opts RecallOptions) ([]*Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make(map[string]float64)
	byID := make(map[string]*Record, len(s.records))

	queryLower := strings.ToLower(query)
	tokens := strings.Fields(queryLower)

	for _, rec := range s.records {
		byID[rec.ID] = rec
		if opts.Kind != "" && rec.Kind != opts.Kind {
			continue
		}
		if opts.Category != "" && rec.Category != opts.Category {
			continue
		}

		contentLower := strings.ToLower(rec.Content)
		score := 0.0
		if strings.Contains(contentLower, queryLower) {
			score += exactSubstringBonus
		}
		for _, token := range tokens {
			if strings.Contains(contentLower, token) {
				score += tokenContentBonus
			}
			for _, tag := range rec.Tags {
				if strings.Contains(strings.ToLower(tag), token) {
					score += tokenTagBonus
					break
				}
			}
		}
		score *= rec.Confidence * rec.SuccessRate
		if score > 0 {
			scores[rec.ID] = score
		}
	}

	if s.index != nil {
		hits, err := s.index.Query(ctx, query, semanticQueryLimit, 0)
		if err != nil {
			s.logger.Debug("semantic recall skipped", zap.Error(err))
		}
		for _, hit := range hits {
			rec, ok := byID[hit.ID]
			if !ok {
				continue
			}
			if opts.Kind != "" && rec.Kind != opts.Kind {
				continue
			}
			if opts.Category != "" && rec.Category != opts.Category {
				continue
			}
			if _, scored := scores[hit.ID]; scored {
				scores[hit.ID] += semanticExistingBonus
			} else {
				scores[hit.ID] = semanticBaselineScore
			}
		}
	}

	results := make([]*Record, 0, len(scores))
	for _, rec := range s.records {
		if _, ok := scores[rec.ID]; ok {
			results = append(results, rec)
		}
	}
	// Stable sort keeps insertion order on ties, so a fixed store gives a
	// fixed ranking.
	sort.SliceStable(results, func(i, j int) bool {
		return scores[results[i].ID] > scores[results[j].ID]
	})
	if len(results) > limit {
		results = results[:limit]
	}

	if len(results) > 0 {
		now := time.Now()
		for _, rec := range results {
			rec.UseCount++
			rec.LastUsedAt = now
		}
		if err := s.persistRecordsLocked(ctx); err != nil {
			s.logger.Warn("usage tracking not persisted", zap.Error(err))
		}
	}
	return results, nil
}

// Forget removes a record by ID and reports whether it existed.
func (s *Store) Forget(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, rec := range s.records {
		if rec.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	removed := s.records[idx]
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	if err := s.persistRecordsLocked(ctx); err != nil {
		return false, core.NewEngineError("Forget", err)
	}

	if s.index != nil {
		s.index.Remove(ctx, removed.ID)
	}
	return true, nil
}

// Get returns the record with the given ID, or nil if absent.
func (s *Store) Get(id string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RemoveExpired drops every record whose expiry has passed and returns how
// many were removed. The snapshot is rewritten only when something changed,
// so back-to-back sweeps are harmless.
func (s *Store) RemoveExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := make([]*Record, 0, len(s.records))
	var expired []*Record
	for _, rec := range s.records {
		if rec.ExpiresAt != nil && rec.ExpiresAt.Before(now) {
			expired = append(expired, rec)
			continue
		}
		kept = append(kept, rec)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	s.records = kept
	if err := s.persistRecordsLocked(ctx); err != nil {
		return 0, core.NewEngineError("RemoveExpired", err)
	}
	for _, rec := range expired {
		if s.index != nil {
			s.index.Remove(ctx, rec.ID)
		}
	}
	return len(expired), nil
}

// Stats summarizes the store for dashboards and the context digest.
type Stats struct {
	Records     int            `json:"records"`
	ByKind      map[Kind]int   `json:"by_kind"`
	ByCategory  map[string]int `json:"by_category"`
	Preferences int            `json:"preferences"`
	Patterns    int            `json:"patterns"`
	TaskTypes   int            `json:"task_types"`
	Reflections int            `json:"reflections"`
}

// Stats returns aggregate counts over all collections.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Records:     len(s.records),
		ByKind:      make(map[Kind]int),
		ByCategory:  make(map[string]int),
		Preferences: len(s.preferences),
		Patterns:    len(s.patterns),
		TaskTypes:   len(s.tasks),
		Reflections: len(s.reflections),
	}
	for _, rec := range s.records {
		st.ByKind[rec.Kind]++
		if rec.Category != "" {
			st.ByCategory[rec.Category]++
		}
	}
	return st
}

// findSimilarLocked returns the first record whose content is a
// near-duplicate of content: an exact case-insensitive match, or a token
// overlap ratio above duplicateOverlapThreshold.
func (s *Store) findSimilarLocked(content string) *Record {
	contentLower := strings.ToLower(content)
	for _, rec := range s.records {
		recLower := strings.ToLower(rec.Content)
		if recLower == contentLower {
			return rec
		}
		if tokenOverlap(recLower, contentLower) > duplicateOverlapThreshold {
			return rec
		}
	}
	return nil
}

// tokenOverlap computes a symmetric overlap-over-union ratio between the
// whitespace token sets of a and b.
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(tokensA))
	for _, t := range tokensA {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tokensB))
	for _, t := range tokensB {
		setB[t] = struct{}{}
	}

	common := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			common++
		}
	}
	union := len(setA) + len(setB) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

func (s *Store) persistRecordsLocked(ctx context.Context) error {
	return s.persistLocked(ctx, storage.CollectionMemories, s.records)
}

func (s *Store) persistLocked(ctx context.Context, collection string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, collection, data); err != nil {
		s.logger.Error("snapshot write failed",
			zap.String("collection", collection), zap.Error(err))
		return core.ErrPersistence
	}
	return nil
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
