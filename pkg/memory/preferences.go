package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/storage"
)

const (
	// preferenceReinforce is the confidence gained each time the same
	// value is observed again for a key.
	preferenceReinforce = 0.15

	// preferenceResetConfidence is the confidence a preference restarts
	// at when a conflicting value replaces the old one.
	preferenceResetConfidence = 0.6

	// preferenceMinConfidence is the exclusive lower bound for a
	// preference to be considered established.
	preferenceMinConfidence = 0.5
)

// LearnPreference records an observed preference value for a key.
//
// Re-observing the same value reinforces confidence (+0.15, capped at 1.0).
// A different value replaces the old one and resets confidence to 0.6: the
// newest observation wins, but it has to re-earn trust.
func (s *Store) LearnPreference(ctx context.Context, key string, value any, learnedFrom string) (*Preference, error) {
	if strings.TrimSpace(key) == "" {
		return nil, core.NewEngineError("LearnPreference", core.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	pref, ok := s.preferences[key]
	if ok && sameValue(pref.Value, value) {
		pref.Confidence = clamp01(pref.Confidence + preferenceReinforce)
		pref.UpdatedAt = now
	} else {
		pref = &Preference{
			Key:         key,
			Value:       value,
			LearnedFrom: learnedFrom,
			Confidence:  preferenceResetConfidence,
			UpdatedAt:   now,
		}
		s.preferences[key] = pref
	}

	if err := s.persistLocked(ctx, storage.CollectionPreferences, s.preferences); err != nil {
		return nil, core.NewEngineError("LearnPreference", err)
	}
	return pref, nil
}

// sameValue reports whether two preference values are equivalent. Values
// are opaque structured data and may not be comparable with ==, and a
// snapshot reload changes dynamic types (int becomes float64, structs
// become maps), so both sides are compared by their JSON encoding.
func sameValue(a, b any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

// GetPreference returns the established preference for key. A preference
// whose confidence has not risen above 0.5 is treated as absent: a single
// conflicting observation is not yet a preference.
func (s *Store) GetPreference(key string) (*Preference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.preferences[key]
	if !ok || pref.Confidence <= preferenceMinConfidence {
		return nil, false
	}
	return pref, true
}

// Preferences returns all preferences above the confidence floor.
func (s *Store) Preferences() []*Preference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Preference, 0, len(s.preferences))
	for _, pref := range s.preferences {
		if pref.Confidence > preferenceMinConfidence {
			out = append(out, pref)
		}
	}
	return out
}
