package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram-go/pkg/core"
)

const (
	// consolidationMinCategorySize is the record count a category must
	// reach before it is worth consolidating.
	consolidationMinCategorySize = 10

	// consolidationMinClusterSize is the smallest cluster that produces
	// a summary record.
	consolidationMinClusterSize = 3

	// consolidationSimilarity is the semantic score a record must reach
	// against a cluster seed to join it.
	consolidationSimilarity = 0.7

	// consolidationNeighborLimit caps the semantic neighbors fetched per
	// cluster seed.
	consolidationNeighborLimit = 10

	// consolidationSummaryMaxLen bounds the summary record's content.
	consolidationSummaryMaxLen = 500
)

// ConsolidationResult reports what one consolidation pass did.
type ConsolidationResult struct {
	// Created holds the summary records produced by the pass.
	Created []*Record `json:"created"`

	// SupersededCount is how many member records were tagged superseded.
	SupersededCount int `json:"superseded_count"`

	// Duration is how long the pass took.
	Duration time.Duration `json:"duration"`
}

// Consolidate compresses crowded categories into summary records.
//
// Each category holding at least 10 records is clustered greedily in a
// single pass: every not-yet-clustered record seeds a cluster and pulls in
// its unclaimed semantic neighbors scoring 0.7 or higher. Clusters of three
// or more become one summary record (kind learning, confidence 0.8, tagged
// summary and auto-generated) whose content concatenates the members,
// truncated to 500 characters. Members are tagged superseded but never
// deleted, so the audit trail survives compression. Clustering is
// order-dependent on purpose: a record joins the first cluster that claims
// it, even if a later seed would have scored it higher.
//
// Without a semantic index the pass is a no-op: keyword overlap alone is
// too weak a signal to merge knowledge on.
func (s *Store) Consolidate(ctx context.Context) (*ConsolidationResult, error) {
	start := time.Now()
	result := &ConsolidationResult{}
	if s.index == nil {
		result.Duration = time.Since(start)
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory := make(map[string][]*Record)
	byID := make(map[string]*Record, len(s.records))
	for _, rec := range s.records {
		byID[rec.ID] = rec
		if rec.Category == "" || rec.HasTag(TagSummary) || rec.HasTag(TagSuperseded) {
			continue
		}
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}

	categories := make([]string, 0, len(byCategory))
	for cat, recs := range byCategory {
		if len(recs) >= consolidationMinCategorySize {
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)

	changed := false
	for _, category := range categories {
		clusters := s.clusterCategoryLocked(ctx, byID, byCategory[category])
		for _, cluster := range clusters {
			if len(cluster) < consolidationMinClusterSize {
				continue
			}
			summary := s.summarizeClusterLocked(category, cluster)
			s.records = append(s.records, summary)
			result.Created = append(result.Created, summary)

			now := time.Now()
			for _, member := range cluster {
				if member.addTag(TagSuperseded) {
					member.UpdatedAt = now
					result.SupersededCount++
				}
			}
			changed = true

			s.logger.Info("consolidated cluster",
				zap.String("category", category),
				zap.Int("members", len(cluster)),
				zap.String("summary_id", summary.ID))
		}
	}

	if changed {
		if err := s.persistRecordsLocked(ctx); err != nil {
			return nil, core.NewEngineError("Consolidate", err)
		}
		for _, summary := range result.Created {
			s.scheduleIndexing(summary)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// clusterCategoryLocked groups a category's records greedily by semantic
// similarity. Each unclaimed record seeds a cluster; its semantic neighbors
// within the same category that score at or above the similarity floor and
// are not yet claimed join it.
func (s *Store) clusterCategoryLocked(ctx context.Context, byID map[string]*Record, recs []*Record) [][]*Record {
	inCategory := make(map[string]bool, len(recs))
	for _, rec := range recs {
		inCategory[rec.ID] = true
	}

	claimed := make(map[string]bool, len(recs))
	var clusters [][]*Record
	for _, seed := range recs {
		if claimed[seed.ID] {
			continue
		}
		claimed[seed.ID] = true
		cluster := []*Record{seed}

		hits, err := s.index.Query(ctx, seed.Content, consolidationNeighborLimit, consolidationSimilarity)
		if err != nil {
			s.logger.Debug("cluster seed query failed", zap.Error(err))
			clusters = append(clusters, cluster)
			continue
		}
		for _, hit := range hits {
			if hit.ID == seed.ID || claimed[hit.ID] || !inCategory[hit.ID] {
				continue
			}
			member, ok := byID[hit.ID]
			if !ok {
				continue
			}
			claimed[hit.ID] = true
			cluster = append(cluster, member)
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// summarizeClusterLocked builds the summary record for one cluster.
func (s *Store) summarizeClusterLocked(category string, cluster []*Record) *Record {
	parts := make([]string, 0, len(cluster))
	for _, member := range cluster {
		parts = append(parts, member.Content)
	}
	content := fmt.Sprintf("Consolidated from %d memories: %s",
		len(cluster), strings.Join(parts, "; "))
	if len(content) > consolidationSummaryMaxLen {
		content = content[:consolidationSummaryMaxLen]
	}

	now := time.Now()
	return &Record{
		ID:          s.node.Generate().String(),
		Kind:        KindLearning,
		Category:    category,
		Content:     content,
		Confidence:  0.8,
		SuccessRate: 1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tags:        []string{TagSummary, TagAutoGenerated},
		Source:      SourceSelf,
		Sensitivity: SensitivityPublic,
		Reliability: defaultReliability,
	}
}

// ConsolidationScheduler runs Consolidate on a fixed interval.
type ConsolidationScheduler struct {
	store    *Store
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewConsolidationScheduler creates a scheduler that consolidates the store
// every interval.
func NewConsolidationScheduler(store *Store, interval time.Duration, logger *zap.Logger) *ConsolidationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolidationScheduler{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the periodic consolidation loop.
func (c *ConsolidationScheduler) Start() {
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run()
	c.logger.Info("consolidation scheduler started",
		zap.Duration("interval", c.interval))
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (c *ConsolidationScheduler) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.logger.Info("consolidation scheduler stopped")
}

func (c *ConsolidationScheduler) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := c.store.Consolidate(context.Background())
			if err != nil {
				c.logger.Error("consolidation pass failed", zap.Error(err))
				continue
			}
			if len(result.Created) > 0 {
				c.logger.Info("consolidation pass complete",
					zap.Int("summaries", len(result.Created)),
					zap.Int("superseded", result.SupersededCount),
					zap.Duration("took", result.Duration))
			}
		case <-c.stop:
			return
		}
	}
}
