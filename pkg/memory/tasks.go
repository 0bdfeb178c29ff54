package memory

import (
	"context"
	"strings"
	"time"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/storage"
)

// LearnTask folds the outcome of a completed task into the knowledge entry
// for its task type.
//
// Repeat outcomes accumulate: the tool set is unioned, the step list is
// replaced by the latest successful sequence, error remedies merge with the
// newest remedy winning per error, and the average duration is updated as a
// running mean over all successes.
func (s *Store) LearnTask(ctx context.Context, outcome TaskOutcome) (*TaskKnowledge, error) {
	if strings.TrimSpace(outcome.TaskType) == "" {
		return nil, core.NewEngineError("LearnTask", core.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tk, ok := s.tasks[outcome.TaskType]
	if !ok {
		tk = &TaskKnowledge{
			TaskType:      outcome.TaskType,
			Description:   outcome.Description,
			ErrorRemedies: make(map[string]string),
			CreatedAt:     time.Now(),
		}
		s.tasks[outcome.TaskType] = tk
	}
	if outcome.Description != "" {
		tk.Description = outcome.Description
	}

	for _, tool := range outcome.Tools {
		if !containsString(tk.Tools, tool) {
			tk.Tools = append(tk.Tools, tool)
		}
	}
	for errText, remedy := range outcome.ErrorRemedies {
		tk.ErrorRemedies[errText] = remedy
	}

	if outcome.Success {
		tk.SuccessfulApproach = outcome.Approach
		if len(outcome.Steps) > 0 {
			tk.Steps = append([]string(nil), outcome.Steps...)
		}
		// Running mean over successes only; failed attempts say nothing
		// about how long the working approach takes.
		total := tk.AvgDuration*time.Duration(tk.SuccessCount) + outcome.Duration
		tk.SuccessCount++
		tk.AvgDuration = total / time.Duration(tk.SuccessCount)
	}

	if err := s.persistLocked(ctx, storage.CollectionTaskKnowledge, s.tasks); err != nil {
		return nil, core.NewEngineError("LearnTask", err)
	}
	return tk, nil
}

// GetTaskKnowledge returns accumulated knowledge for a task type, or nil
// when the agent has never done it.
func (s *Store) GetTaskKnowledge(taskType string) *TaskKnowledge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[taskType]
}

// TaskTypes lists every task type the store knows about.
func (s *Store) TaskTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tasks))
	for taskType := range s.tasks {
		out = append(out, taskType)
	}
	return out
}
