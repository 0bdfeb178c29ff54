package skills

import (
	"context"
	"time"

	"github.com/engramlabs/engram-go/pkg/core"
)

// AchievementDef is one declarative achievement rule: identity plus a pure
// predicate over a profile. Definitions are evaluated in order.
type AchievementDef struct {
	ID          string
	Name        string
	Description string
	Category    string
	Satisfied   func(*AgentProfile) bool
}

// defaultAchievements is the fixed rule set evaluated after every award.
var defaultAchievements = []AchievementDef{
	{
		ID:          "first-skill",
		Name:        "First Steps",
		Description: "Earn XP in a skill for the first time",
		Category:    "milestone",
		Satisfied: func(p *AgentProfile) bool {
			return len(p.Skills) >= 1
		},
	},
	{
		ID:          "dedicated",
		Name:        "Dedicated",
		Description: "Complete 10 tasks with a single skill",
		Category:    "milestone",
		Satisfied: func(p *AgentProfile) bool {
			for _, prog := range p.Skills {
				if prog.TasksCompleted >= 10 {
					return true
				}
			}
			return false
		},
	},
	{
		ID:          "well-rounded",
		Name:        "Well-Rounded",
		Description: "Earn XP in 5 distinct skills",
		Category:    "breadth",
		Satisfied: func(p *AgentProfile) bool {
			return len(p.Skills) >= 5
		},
	},
	{
		ID:          "polyglot",
		Name:        "Polyglot",
		Description: "Hold skills spanning 4 categories",
		Category:    "breadth",
		Satisfied: func(p *AgentProfile) bool {
			categories := make(map[string]struct{})
			for _, prog := range p.Skills {
				if prog.Category != "" {
					categories[prog.Category] = struct{}{}
				}
			}
			return len(categories) >= 4
		},
	},
	{
		ID:          "expert",
		Name:        "Expert",
		Description: "Raise a skill to expert level",
		Category:    "mastery",
		Satisfied: func(p *AgentProfile) bool {
			return p.hasSkillAtOrAbove(LevelExpert)
		},
	},
	{
		ID:          "master",
		Name:        "Master",
		Description: "Raise a skill to master level",
		Category:    "mastery",
		Satisfied: func(p *AgentProfile) bool {
			return p.hasSkillAtOrAbove(LevelMaster)
		},
	},
	{
		ID:          "xp-1000",
		Name:        "Seasoned",
		Description: "Accumulate 1,000 total XP",
		Category:    "grind",
		Satisfied: func(p *AgentProfile) bool {
			return p.TotalXP >= 1000
		},
	},
	{
		ID:          "xp-5000",
		Name:        "Veteran",
		Description: "Accumulate 5,000 total XP",
		Category:    "grind",
		Satisfied: func(p *AgentProfile) bool {
			return p.TotalXP >= 5000
		},
	},
	{
		ID:          "century",
		Name:        "Centurion",
		Description: "Complete 100 tasks",
		Category:    "grind",
		Satisfied: func(p *AgentProfile) bool {
			return p.TotalTasksCompleted >= 100
		},
	},
}

func (p *AgentProfile) hasSkillAtOrAbove(level Level) bool {
	want := levelOrdinal(level)
	for _, prog := range p.Skills {
		if levelOrdinal(prog.Level) >= want {
			return true
		}
	}
	return false
}

// CheckAchievements re-evaluates the rule set against an agent's profile
// and unlocks anything newly satisfied. Already-unlocked IDs are never
// re-emitted. Returns the newly unlocked achievements, if any.
func (e *Engine) CheckAchievements(ctx context.Context, agentID string) ([]Achievement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	profile := e.profiles[agentID]
	if profile == nil {
		return nil, nil
	}
	unlocked := e.checkAchievementsLocked(profile)
	if len(unlocked) > 0 {
		if err := e.persistLocked(ctx); err != nil {
			return nil, core.NewEngineError("CheckAchievements", err)
		}
	}
	return unlocked, nil
}

func (e *Engine) checkAchievementsLocked(profile *AgentProfile) []Achievement {
	var unlocked []Achievement
	now := time.Now()
	for _, def := range e.achievements {
		if profile.HasAchievement(def.ID) {
			continue
		}
		if !def.Satisfied(profile) {
			continue
		}
		a := Achievement{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			UnlockedAt:  now,
		}
		profile.Achievements = append(profile.Achievements, a)
		unlocked = append(unlocked, a)

		e.emitLocked(Event{
			Type:        EventAchievementUnlocked,
			AgentID:     profile.AgentID,
			AgentName:   profile.AgentName,
			Achievement: &a,
		})
	}
	return unlocked
}
