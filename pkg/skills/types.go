// Package skills tracks per-agent competence as an experience and leveling
// state machine: XP awards gated by skill prerequisites, levels recomputed
// from fixed XP thresholds, idle decay with a configurable floor, and a
// declarative achievement rule set evaluated after every award.
package skills

import "time"

// Level is a discrete competence rank.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelExpert       Level = "expert"
	LevelMaster       Level = "master"
)

// levelOrder lists levels by ascending rank; index is the ordinal used for
// prerequisite comparison.
var levelOrder = []Level{
	LevelBeginner,
	LevelIntermediate,
	LevelAdvanced,
	LevelExpert,
	LevelMaster,
}

// levelThresholds maps each level (by ordinal) to the cumulative XP at
// which it starts. Master is terminal.
var levelThresholds = []int{0, 100, 350, 850, 1850}

// levelForXP maps cumulative XP to a level. Level is always derived from
// total XP, never stored independently.
func levelForXP(totalXP int) Level {
	level := levelOrder[0]
	for i, threshold := range levelThresholds {
		if totalXP >= threshold {
			level = levelOrder[i]
		}
	}
	return level
}

// levelOrdinal returns the rank of a level, or -1 for an unknown level.
func levelOrdinal(level Level) int {
	for i, l := range levelOrder {
		if l == level {
			return i
		}
	}
	return -1
}

// thresholdForLevel returns the cumulative XP at which a level starts.
func thresholdForLevel(level Level) int {
	if ord := levelOrdinal(level); ord >= 0 {
		return levelThresholds[ord]
	}
	return 0
}

// SkillProgress is the per-(agent, skill) state.
type SkillProgress struct {
	// SkillName identifies the skill within the profile.
	SkillName string `json:"skill_name"`

	// Category groups related skills for achievement predicates.
	Category string `json:"category,omitempty"`

	// Level is derived from TotalXP on every mutation.
	Level Level `json:"level"`

	// CurrentXP is progress within the current level.
	CurrentXP int `json:"current_xp"`

	// TotalXP is cumulative experience across all levels.
	TotalXP int `json:"total_xp"`

	// XPToNextLevel is the XP still needed to level up; 0 at master.
	XPToNextLevel int `json:"xp_to_next_level"`

	// TasksCompleted counts XP-earning task completions for this skill.
	TasksCompleted int `json:"tasks_completed"`

	// FirstUsed and LastUsed bracket the skill's activity window.
	FirstUsed time.Time `json:"first_used"`
	LastUsed  time.Time `json:"last_used"`
}

// recomputeLevel rederives Level, CurrentXP, and XPToNextLevel from TotalXP.
func (p *SkillProgress) recomputeLevel() {
	p.Level = levelForXP(p.TotalXP)
	ord := levelOrdinal(p.Level)
	p.CurrentXP = p.TotalXP - levelThresholds[ord]
	if ord+1 < len(levelThresholds) {
		p.XPToNextLevel = levelThresholds[ord+1] - p.TotalXP
	} else {
		p.XPToNextLevel = 0
	}
}

// AgentProfile is the full skill state for one agent, created lazily on the
// agent's first XP award.
type AgentProfile struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`

	// Skills maps skill name to its progress.
	Skills map[string]*SkillProgress `json:"skills"`

	// Achievements unlocked so far, unique by ID.
	Achievements []Achievement `json:"achievements,omitempty"`

	// TotalXP is cumulative XP across all skills.
	TotalXP int `json:"total_xp"`

	// TotalTasksCompleted is cumulative task completions across skills.
	TotalTasksCompleted int `json:"total_tasks_completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAchievement reports whether the profile already holds an achievement.
func (p *AgentProfile) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Achievement is a one-time milestone unlocked on a profile.
type Achievement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// DependencyEdge declares that Skill may not earn XP until the agent holds
// RequiredSkill at RequiredLevel or above. The table is flat; no cycle
// detection is performed.
type DependencyEdge struct {
	Skill         string `json:"skill"`
	RequiredSkill string `json:"required_skill"`
	RequiredLevel Level  `json:"required_level"`
}

// XPAward is the input to AwardXP.
type XPAward struct {
	AgentID   string
	AgentName string
	Skill     string
	Category  string
	Amount    int
	Reason    string
}

// AwardResult reports the effect of an AwardXP call. A zero Awarded with a
// non-empty Reason means a prerequisite gate blocked the award; that is a
// normal outcome, not an error.
type AwardResult struct {
	// Awarded is the XP actually granted; 0 when gated.
	Awarded int `json:"awarded"`

	// Reason explains a zero award.
	Reason string `json:"reason,omitempty"`

	// Progress is the skill state after the award; nil when gated.
	Progress *SkillProgress `json:"progress,omitempty"`

	// LeveledUp reports whether the award crossed a level threshold.
	LeveledUp bool  `json:"leveled_up"`
	OldLevel  Level `json:"old_level,omitempty"`
	NewLevel  Level `json:"new_level,omitempty"`

	// Unlocked lists achievements newly earned by this award.
	Unlocked []Achievement `json:"unlocked,omitempty"`
}
