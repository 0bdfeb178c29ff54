package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	contextRecallLimit     = 5
	contextPreferenceLimit = 5
	contextReflectionLimit = 3
)

// BuildContext assembles a plain-text digest of what the store knows that
// is relevant to a query: top recalled records, accumulated task knowledge,
// established preferences, and the latest reflections. The digest is meant
// to be prepended to an agent prompt, so sections with nothing to say are
// omitted entirely.
//
// Task knowledge is looked up by matching known task types against the
// query text, so "generate the invoice for March" pulls up what was learned
// under "generate_invoice".
func (s *Store) BuildContext(ctx context.Context, query string) (string, error) {
	var b strings.Builder

	records, err := s.Recall(ctx, query, RecallOptions{Limit: contextRecallLimit})
	if err != nil {
		return "", err
	}
	if len(records) > 0 {
		b.WriteString("Relevant memories:\n")
		for _, rec := range records {
			fmt.Fprintf(&b, "- [%s] %s (confidence %.2f)\n", rec.Kind, rec.Content, rec.Confidence)
		}
	}

	if tk := s.matchTaskKnowledge(query); tk != nil {
		b.WriteString("\nTask knowledge:\n")
		if tk.SuccessfulApproach != "" {
			fmt.Fprintf(&b, "- Approach that worked: %s\n", tk.SuccessfulApproach)
		}
		if len(tk.Tools) > 0 {
			fmt.Fprintf(&b, "- Tools: %s\n", strings.Join(tk.Tools, ", "))
		}
		for _, step := range tk.Steps {
			fmt.Fprintf(&b, "- Step: %s\n", step)
		}
		for errText, remedy := range tk.ErrorRemedies {
			fmt.Fprintf(&b, "- If %q: %s\n", errText, remedy)
		}
		if tk.SuccessCount > 0 {
			fmt.Fprintf(&b, "- Done successfully %d time(s), avg %s\n", tk.SuccessCount, tk.AvgDuration)
		}
	}

	prefs := s.Preferences()
	if len(prefs) > 0 {
		sort.Slice(prefs, func(i, j int) bool {
			if prefs[i].Confidence != prefs[j].Confidence {
				return prefs[i].Confidence > prefs[j].Confidence
			}
			return prefs[i].Key < prefs[j].Key
		})
		if len(prefs) > contextPreferenceLimit {
			prefs = prefs[:contextPreferenceLimit]
		}
		b.WriteString("\nUser preferences:\n")
		for _, pref := range prefs {
			fmt.Fprintf(&b, "- %s: %v\n", pref.Key, pref.Value)
		}
	}

	reflections := s.RecentReflections(contextReflectionLimit)
	if len(reflections) > 0 {
		b.WriteString("\nRecent reflections:\n")
		for _, refl := range reflections {
			fmt.Fprintf(&b, "- [%s] %s", refl.Outcome, refl.Interaction)
			if refl.Improvement != "" {
				fmt.Fprintf(&b, " (next time: %s)", refl.Improvement)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// matchTaskKnowledge finds the task type whose name tokens all appear in
// the query text. Task type names use underscores ("generate_invoice"), so
// each token is matched as a substring of the lowered query. Ties go to the
// most specific name.
func (s *Store) matchTaskKnowledge(query string) *TaskKnowledge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(query)
	var best *TaskKnowledge
	var bestTokens int
	var bestName string
	for name, tk := range s.tasks {
		tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
			return r == '_' || r == '-' || r == ' '
		})
		if len(tokens) == 0 {
			continue
		}
		matched := true
		for _, tok := range tokens {
			if !strings.Contains(lower, tok) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if best == nil || len(tokens) > bestTokens ||
			(len(tokens) == bestTokens && name < bestName) {
			best = tk
			bestTokens = len(tokens)
			bestName = name
		}
	}
	return best
}
