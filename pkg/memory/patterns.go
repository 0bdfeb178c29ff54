package memory

import (
	"context"
	"strings"
	"time"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/storage"
)

// LearnPattern records a trigger/response behavioral pattern.
//
// Triggers are matched fuzzily: two triggers are the same pattern when
// either normalized form contains the other. A match reinforces the
// existing pattern (success count, example list) instead of creating a
// duplicate. The first matching pattern in insertion order wins.
func (s *Store) LearnPattern(ctx context.Context, trigger, response, example string) (*Pattern, error) {
	if strings.TrimSpace(trigger) == "" || strings.TrimSpace(response) == "" {
		return nil, core.NewEngineError("LearnPattern", core.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	pat := s.findPatternLocked(trigger)
	if pat != nil {
		pat.Response = response
		pat.SuccessCount++
		pat.LastUsed = now
		if example != "" && !containsString(pat.Examples, example) {
			pat.Examples = append(pat.Examples, example)
		}
	} else {
		pat = &Pattern{
			Trigger:      trigger,
			Response:     response,
			SuccessCount: 1,
			LastUsed:     now,
		}
		if example != "" {
			pat.Examples = []string{example}
		}
		s.patterns = append(s.patterns, pat)
	}

	if err := s.persistLocked(ctx, storage.CollectionPatterns, s.patterns); err != nil {
		return nil, core.NewEngineError("LearnPattern", err)
	}
	return pat, nil
}

// FindPattern returns the first pattern whose trigger fuzzily matches
// situation, or nil when none does.
func (s *Store) FindPattern(situation string) *Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPatternLocked(situation)
}

// RecordPatternFailure notes that applying the pattern for situation did
// not work, weakening it for future ranking.
func (s *Store) RecordPatternFailure(ctx context.Context, situation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pat := s.findPatternLocked(situation)
	if pat == nil {
		return nil
	}
	pat.FailCount++
	if err := s.persistLocked(ctx, storage.CollectionPatterns, s.patterns); err != nil {
		return core.NewEngineError("RecordPatternFailure", err)
	}
	return nil
}

func (s *Store) findPatternLocked(trigger string) *Pattern {
	norm := normalizeTrigger(trigger)
	if norm == "" {
		return nil
	}
	for _, pat := range s.patterns {
		existing := normalizeTrigger(pat.Trigger)
		if strings.Contains(existing, norm) || strings.Contains(norm, existing) {
			return pat
		}
	}
	return nil
}

func normalizeTrigger(trigger string) string {
	return strings.Join(strings.Fields(strings.ToLower(trigger)), " ")
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
