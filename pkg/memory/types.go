// Package memory implements the record-of-truth for everything an agent
// learns: facts, preferences, behavioral patterns, task approaches, and
// reflections. It owns merge-on-duplicate logic, hybrid keyword+semantic
// recall, and durable persistence of its collections.
package memory

import "time"

// Kind classifies what a record holds.
type Kind string

const (
	// KindFact is a plain stored fact.
	KindFact Kind = "fact"

	// KindPreference is a user preference captured as free text.
	KindPreference Kind = "preference"

	// KindLearning is knowledge the agent derived itself, including
	// consolidation summaries.
	KindLearning Kind = "learning"

	// KindPattern is a behavioral pattern note.
	KindPattern Kind = "pattern"

	// KindCorrection is a lesson learned from a failure.
	KindCorrection Kind = "correction"

	// KindSkill is a note about a competence.
	KindSkill Kind = "skill"
)

// Source identifies where a record came from.
type Source string

const (
	// SourceUser marks knowledge stated by the user.
	SourceUser Source = "user"

	// SourceSelf marks knowledge the agent generated itself.
	SourceSelf Source = "self"

	// SourceInteraction marks knowledge extracted from an interaction.
	SourceInteraction Source = "interaction"
)

// Sensitivity is the handling level of a record's content.
type Sensitivity string

const (
	SensitivityPublic    Sensitivity = "public"
	SensitivityInternal  Sensitivity = "internal"
	SensitivitySensitive Sensitivity = "sensitive"
)

// Tags added by the consolidation pass.
const (
	// TagSummary marks a record produced by consolidating a cluster.
	TagSummary = "summary"

	// TagAutoGenerated marks records the engine created on its own.
	TagAutoGenerated = "auto-generated"

	// TagSuperseded marks a record whose content has been folded into a
	// summary. Superseded records are kept for auditability and are not
	// currently excluded from recall.
	TagSuperseded = "superseded"
)

// Record is a single stored unit of knowledge.
//
// Confidence and SuccessRate always lie in [0, 1]. Records are created by
// Remember, strengthened in place by merge-on-duplicate and by usage
// tracking during Recall, tagged (never content-mutated) by the
// consolidator, and removed by Forget or the expiry sweep.
type Record struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// Kind classifies the record.
	Kind Kind `json:"kind"`

	// Category is a free-form grouping label.
	Category string `json:"category"`

	// Content is the stored text, already privacy-redacted.
	Content string `json:"content"`

	// Context optionally records the situation the knowledge applies to.
	Context string `json:"context,omitempty"`

	// Confidence expresses how trusted the record is, in [0, 1].
	Confidence float64 `json:"confidence"`

	// UseCount is how many times the record has been returned by Recall.
	UseCount int `json:"use_count"`

	// SuccessRate tracks how often acting on the record worked, in [0, 1].
	SuccessRate float64 `json:"success_rate"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last strengthened or re-tagged.
	UpdatedAt time.Time `json:"updated_at"`

	// LastUsedAt is when the record was last returned by Recall.
	LastUsedAt time.Time `json:"last_used_at"`

	// Tags label the record for tag-boosted recall.
	Tags []string `json:"tags,omitempty"`

	// Source identifies where the record came from.
	Source Source `json:"source"`

	// ExpiresAt, when set, schedules the record for the expiry sweep.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Sensitivity is the content handling level.
	Sensitivity Sensitivity `json:"sensitivity"`

	// OriginID optionally links the record to whatever produced it.
	OriginID string `json:"origin_id,omitempty"`

	// Reliability scores the record's source, in [0, 1].
	Reliability float64 `json:"reliability"`

	// HasPII reports whether the privacy filter redacted anything.
	HasPII bool `json:"has_pii"`
}

// HasTag reports whether the record carries tag.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// addTag appends tag if not already present and reports whether it was added.
func (r *Record) addTag(tag string) bool {
	if r.HasTag(tag) {
		return false
	}
	r.Tags = append(r.Tags, tag)
	return true
}

// Candidate is the input to Remember. Zero-valued fields receive defaults:
// confidence 0.7, reliability 0.7, success rate 1.0, sensitivity public,
// source interaction.
type Candidate struct {
	Kind        Kind
	Category    string
	Content     string
	Context     string
	Confidence  float64
	SuccessRate float64
	Tags        []string
	Source      Source
	ExpiresAt   *time.Time
	Sensitivity Sensitivity
	OriginID    string
	Reliability float64
}

// RecallOptions filter and bound a Recall call.
type RecallOptions struct {
	// Kind, when non-empty, restricts results to one kind.
	Kind Kind

	// Category, when non-empty, restricts results to one category.
	Category string

	// Limit caps the number of results. Defaults to DefaultRecallLimit.
	Limit int
}

// Preference is a keyed user preference. One entry exists per key; the value
// is replaced wholesale on conflicting evidence.
type Preference struct {
	// Key uniquely identifies the preference.
	Key string `json:"key"`

	// Value is the preferred value, opaque to the store.
	Value any `json:"value"`

	// LearnedFrom records the context the preference was learned in.
	LearnedFrom string `json:"learned_from,omitempty"`

	// Confidence expresses how settled the preference is, in [0, 1].
	// Preferences at or below 0.5 are withheld from lookups.
	Confidence float64 `json:"confidence"`

	// UpdatedAt is when the preference last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Pattern is a trigger → response behavior learned from interactions.
// One entry exists per distinct trigger key; writes fuzzy-merge into the
// first matching entry.
type Pattern struct {
	// Trigger is the normalized lookup key.
	Trigger string `json:"trigger"`

	// Response is the behavior to apply when the trigger matches.
	Response string `json:"response"`

	// Examples are deduplicated inputs that matched the trigger, in the
	// order they were first seen.
	Examples []string `json:"examples,omitempty"`

	// SuccessCount and FailCount track how the pattern performed.
	SuccessCount int `json:"success_count"`
	FailCount    int `json:"fail_count"`

	// LastUsed is when the pattern was last matched or reinforced.
	LastUsed time.Time `json:"last_used"`
}

// TaskKnowledge is the accumulated know-how for one task type. Steps hold
// the latest successful sequence, not a history.
type TaskKnowledge struct {
	// TaskType is the unique key.
	TaskType string `json:"task_type"`

	// Description summarizes the task.
	Description string `json:"description,omitempty"`

	// SuccessfulApproach describes what worked.
	SuccessfulApproach string `json:"successful_approach,omitempty"`

	// Tools is the union of tools used across successful runs.
	Tools []string `json:"tools,omitempty"`

	// Steps is the most recent successful step sequence.
	Steps []string `json:"steps,omitempty"`

	// ErrorRemedies maps an error type to the remedy that fixed it.
	ErrorRemedies map[string]string `json:"error_remedies,omitempty"`

	// SuccessCount is how many successful runs have been merged in.
	SuccessCount int `json:"success_count"`

	// AvgDuration is the running average duration of successful runs.
	AvgDuration time.Duration `json:"avg_duration"`

	// CreatedAt is when the task type was first learned.
	CreatedAt time.Time `json:"created_at"`
}

// TaskOutcome is the input to LearnTask.
type TaskOutcome struct {
	TaskType      string
	Description   string
	Success       bool
	Approach      string
	Tools         []string
	Steps         []string
	ErrorRemedies map[string]string
	Duration      time.Duration
}

// Outcome classifies how an interaction went.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Reflection is a post-interaction self-assessment. Reflections are
// append-only and bounded to the most recent MaxReflections.
type Reflection struct {
	// Interaction is the interaction text being reflected on.
	Interaction string `json:"interaction"`

	// Outcome is how the interaction went.
	Outcome Outcome `json:"outcome"`

	// WhatWorked and WhatFailed list observations from the interaction.
	WhatWorked []string `json:"what_worked,omitempty"`
	WhatFailed []string `json:"what_failed,omitempty"`

	// Improvement is a note on what to do differently.
	Improvement string `json:"improvement,omitempty"`

	// CreatedAt is when the reflection was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Analysis carries the self-assessment lists passed to Reflect.
type Analysis struct {
	WhatWorked  []string
	WhatFailed  []string
	Improvement string
}
