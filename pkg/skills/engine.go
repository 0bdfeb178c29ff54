package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/storage"
)

const (
	// DefaultIdleThreshold is how long a skill can sit unused before
	// decay starts eating its XP.
	DefaultIdleThreshold = 7 * 24 * time.Hour

	// DefaultDecayRatePerDay is the XP lost per idle day past the
	// threshold.
	DefaultDecayRatePerDay = 5

	// DefaultDecayFloor is the level whose XP threshold decay can never
	// push a skill below.
	DefaultDecayFloor = LevelIntermediate
)

// Engine owns all agent skill profiles. Mutations are serialized through
// one mutex and persist the whole profile collection on every change.
type Engine struct {
	mu       sync.RWMutex
	profiles map[string]*AgentProfile
	deps     []DependencyEdge
	handlers []EventHandler

	achievements []AchievementDef

	store  storage.SnapshotStore
	logger *zap.Logger

	idleThreshold   time.Duration
	decayRatePerDay int
	decayFloor      Level
}

// Config contains configuration for creating an Engine.
type Config struct {
	// Store persists the profile collection.
	Store storage.SnapshotStore

	// Dependencies is the prerequisite table. Optional.
	Dependencies []DependencyEdge

	// IdleThreshold defaults to DefaultIdleThreshold.
	IdleThreshold time.Duration

	// DecayRatePerDay defaults to DefaultDecayRatePerDay.
	DecayRatePerDay int

	// DecayFloor defaults to DefaultDecayFloor.
	DecayFloor Level

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewEngine creates an Engine and loads persisted profiles. A missing or
// corrupt snapshot starts the engine empty.
func NewEngine(ctx context.Context, cfg *Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		profiles:        make(map[string]*AgentProfile),
		deps:            append([]DependencyEdge(nil), cfg.Dependencies...),
		achievements:    defaultAchievements,
		store:           cfg.Store,
		logger:          logger,
		idleThreshold:   cfg.IdleThreshold,
		decayRatePerDay: cfg.DecayRatePerDay,
		decayFloor:      cfg.DecayFloor,
	}
	if e.idleThreshold <= 0 {
		e.idleThreshold = DefaultIdleThreshold
	}
	if e.decayRatePerDay <= 0 {
		e.decayRatePerDay = DefaultDecayRatePerDay
	}
	if e.decayFloor == "" {
		e.decayFloor = DefaultDecayFloor
	}

	data, err := e.store.Load(ctx, storage.CollectionSkillProfiles)
	if err != nil {
		logger.Warn("profile snapshot unreadable, starting empty", zap.Error(err))
		return e, nil
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &e.profiles); err != nil {
			logger.Warn("profile snapshot corrupt, starting empty", zap.Error(err))
			e.profiles = make(map[string]*AgentProfile)
		}
	}
	return e, nil
}

// AddDependency appends a prerequisite edge to the gate table.
func (e *Engine) AddDependency(edge DependencyEdge) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deps = append(e.deps, edge)
}

// AwardXP grants experience to an agent's skill.
//
// The award is gated first: every dependency edge targeting the skill must
// already be satisfied by the agent's profile, or the call returns a
// zero-XP result carrying the unmet prerequisite as its reason, with no
// state change. Otherwise the profile and skill entry are created lazily,
// XP and task counters advance, the level is recomputed, achievements are
// re-evaluated, and the whole profile collection is persisted.
func (e *Engine) AwardXP(ctx context.Context, award XPAward) (*AwardResult, error) {
	if award.AgentID == "" || award.Skill == "" {
		return nil, core.NewEngineError("AwardXP", core.ErrInvalidInput)
	}
	if award.Amount < 0 {
		return nil, core.NewEngineError("AwardXP", core.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profile := e.profiles[award.AgentID]
	if reason := e.unmetPrerequisiteLocked(profile, award.Skill); reason != "" {
		return &AwardResult{Reason: reason}, nil
	}

	now := time.Now()
	if profile == nil {
		profile = &AgentProfile{
			AgentID:   award.AgentID,
			AgentName: award.AgentName,
			Skills:    make(map[string]*SkillProgress),
			CreatedAt: now,
		}
		e.profiles[award.AgentID] = profile
	}
	if award.AgentName != "" {
		profile.AgentName = award.AgentName
	}

	prog, ok := profile.Skills[award.Skill]
	if !ok {
		prog = &SkillProgress{
			SkillName: award.Skill,
			Category:  award.Category,
			Level:     LevelBeginner,
			FirstUsed: now,
		}
		profile.Skills[award.Skill] = prog
	}
	if award.Category != "" {
		prog.Category = award.Category
	}

	oldLevel := prog.Level
	prog.TotalXP += award.Amount
	prog.TasksCompleted++
	prog.LastUsed = now
	prog.recomputeLevel()

	profile.TotalXP += award.Amount
	profile.TotalTasksCompleted++
	profile.UpdatedAt = now

	result := &AwardResult{
		Awarded:  award.Amount,
		Progress: prog,
		OldLevel: oldLevel,
		NewLevel: prog.Level,
	}

	e.emitLocked(Event{
		Type:      EventXPAwarded,
		AgentID:   profile.AgentID,
		AgentName: profile.AgentName,
		Skill:     award.Skill,
		Amount:    award.Amount,
		Reason:    award.Reason,
	})
	if prog.Level != oldLevel {
		result.LeveledUp = true
		e.emitLocked(Event{
			Type:      EventLevelUp,
			AgentID:   profile.AgentID,
			AgentName: profile.AgentName,
			Skill:     award.Skill,
			OldLevel:  oldLevel,
			NewLevel:  prog.Level,
		})
		e.logger.Info("skill leveled up",
			zap.String("agent", profile.AgentID),
			zap.String("skill", award.Skill),
			zap.String("from", string(oldLevel)),
			zap.String("to", string(prog.Level)))
	}

	result.Unlocked = e.checkAchievementsLocked(profile)

	if err := e.persistLocked(ctx); err != nil {
		return nil, core.NewEngineError("AwardXP", err)
	}
	return result, nil
}

// unmetPrerequisiteLocked returns an explanation for the first dependency
// edge targeting skill that the profile does not satisfy, or "".
func (e *Engine) unmetPrerequisiteLocked(profile *AgentProfile, skill string) string {
	for _, edge := range e.deps {
		if edge.Skill != skill {
			continue
		}
		var have Level
		if profile != nil {
			if prog, ok := profile.Skills[edge.RequiredSkill]; ok {
				have = prog.Level
			}
		}
		if have == "" || levelOrdinal(have) < levelOrdinal(edge.RequiredLevel) {
			return fmt.Sprintf("requires %s at %s level or above",
				edge.RequiredSkill, edge.RequiredLevel)
		}
	}
	return ""
}

// GetAgentProfile returns an agent's profile, or nil if the agent has never
// earned XP.
func (e *Engine) GetAgentProfile(agentID string) *AgentProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profiles[agentID]
}

// GetSkillProgress returns one skill's progress for an agent, or nil.
func (e *Engine) GetSkillProgress(agentID, skill string) *SkillProgress {
	e.mu.RLock()
	defer e.mu.RUnlock()
	profile := e.profiles[agentID]
	if profile == nil {
		return nil
	}
	return profile.Skills[skill]
}

// GetTopSkills returns an agent's skills ordered by total XP descending,
// capped at n. Ties break alphabetically so the ordering is stable.
func (e *Engine) GetTopSkills(agentID string, n int) []*SkillProgress {
	e.mu.RLock()
	defer e.mu.RUnlock()

	profile := e.profiles[agentID]
	if profile == nil {
		return nil
	}
	out := make([]*SkillProgress, 0, len(profile.Skills))
	for _, prog := range profile.Skills {
		out = append(out, prog)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return strings.Compare(out[i].SkillName, out[j].SkillName) < 0
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TriggerDecay applies idle decay across all agents and skills and returns
// how many skills lost XP.
//
// A skill idle past the threshold loses decayRatePerDay XP per excess idle
// day, but never drops below the XP threshold of the configured floor
// level; skills already at or below the floor are untouched. The snapshot
// is rewritten once per sweep, and only when something changed, so repeated
// sweeps are harmless.
func (e *Engine) TriggerDecay(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	floorXP := thresholdForLevel(e.decayFloor)
	decayed := 0

	for _, profile := range e.profiles {
		for _, prog := range profile.Skills {
			if prog.TotalXP <= floorXP {
				continue
			}
			idle := now.Sub(prog.LastUsed)
			if idle <= e.idleThreshold {
				continue
			}
			excessDays := int((idle - e.idleThreshold).Hours() / 24)
			if excessDays <= 0 {
				continue
			}

			loss := excessDays * e.decayRatePerDay
			newTotal := prog.TotalXP - loss
			if newTotal < floorXP {
				newTotal = floorXP
			}
			loss = prog.TotalXP - newTotal
			if loss == 0 {
				continue
			}

			oldLevel := prog.Level
			profile.TotalXP -= loss
			prog.TotalXP = newTotal
			prog.recomputeLevel()
			profile.UpdatedAt = now
			decayed++

			if prog.Level != oldLevel {
				e.emitLocked(Event{
					Type:      EventDecayLevelDown,
					AgentID:   profile.AgentID,
					AgentName: profile.AgentName,
					Skill:     prog.SkillName,
					Amount:    -loss,
					OldLevel:  oldLevel,
					NewLevel:  prog.Level,
				})
				e.logger.Info("skill decayed a level",
					zap.String("agent", profile.AgentID),
					zap.String("skill", prog.SkillName),
					zap.String("from", string(oldLevel)),
					zap.String("to", string(prog.Level)))
			}
		}
	}

	if decayed == 0 {
		return 0, nil
	}
	if err := e.persistLocked(ctx); err != nil {
		return 0, core.NewEngineError("TriggerDecay", err)
	}
	return decayed, nil
}

func (e *Engine) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(e.profiles)
	if err != nil {
		return err
	}
	if err := e.store.Save(ctx, storage.CollectionSkillProfiles, data); err != nil {
		e.logger.Error("profile snapshot write failed", zap.Error(err))
		return core.ErrPersistence
	}
	return nil
}
