package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/storage"
)

// Reflect records a post-interaction self-assessment and converts its
// observations into durable records.
//
// On success, each "what worked" observation becomes a learning record at
// confidence 0.8. On failure with a stated improvement, the improvement
// becomes a correction record at confidence 0.9: lessons from failure are
// weighted above routine successes. The reflection log itself is bounded to
// the most recent MaxReflections entries.
func (s *Store) Reflect(ctx context.Context, interaction string, outcome Outcome, analysis Analysis) (*Reflection, error) {
	if strings.TrimSpace(interaction) == "" {
		return nil, core.NewEngineError("Reflect", core.ErrInvalidInput)
	}

	refl := &Reflection{
		Interaction: interaction,
		Outcome:     outcome,
		WhatWorked:  append([]string(nil), analysis.WhatWorked...),
		WhatFailed:  append([]string(nil), analysis.WhatFailed...),
		Improvement: analysis.Improvement,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.reflections = append(s.reflections, refl)
	if len(s.reflections) > MaxReflections {
		s.reflections = s.reflections[len(s.reflections)-MaxReflections:]
	}
	err := s.persistLocked(ctx, storage.CollectionReflections, s.reflections)
	s.mu.Unlock()
	if err != nil {
		return nil, core.NewEngineError("Reflect", err)
	}

	// Derived records go through Remember so they get the usual dedup,
	// privacy, and indexing treatment.
	switch {
	case outcome == OutcomeSuccess:
		for _, worked := range analysis.WhatWorked {
			_, err := s.Remember(ctx, Candidate{
				Kind:       KindLearning,
				Category:   "reflection",
				Content:    fmt.Sprintf("Worked well: %s", worked),
				Context:    interaction,
				Confidence: 0.8,
				Source:     SourceSelf,
			})
			if err != nil {
				return nil, core.NewEngineError("Reflect", err)
			}
		}
	case outcome == OutcomeFailure && analysis.Improvement != "":
		_, err := s.Remember(ctx, Candidate{
			Kind:       KindCorrection,
			Category:   "reflection",
			Content:    fmt.Sprintf("Next time: %s", analysis.Improvement),
			Context:    interaction,
			Confidence: 0.9,
			Source:     SourceSelf,
		})
		if err != nil {
			return nil, core.NewEngineError("Reflect", err)
		}
	}
	return refl, nil
}

// RecentReflections returns up to n reflections, newest last.
func (s *Store) RecentReflections(n int) []*Reflection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.reflections) {
		n = len(s.reflections)
	}
	out := make([]*Reflection, n)
	copy(out, s.reflections[len(s.reflections)-n:])
	return out
}
