package skills_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/skills"
	filestore "github.com/engramlabs/engram-go/pkg/storage/file"
)

func newTestEngine(t *testing.T, cfg *skills.Config) *skills.Engine {
	t.Helper()

	if cfg == nil {
		cfg = &skills.Config{}
	}
	if cfg.Store == nil {
		snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { snap.Close() })
		cfg.Store = snap
	}

	engine, err := skills.NewEngine(context.Background(), cfg)
	require.NoError(t, err)
	return engine
}

func TestAwardXPCreatesProfileLazily(t *testing.T) {
	engine := newTestEngine(t, nil)

	require.Nil(t, engine.GetAgentProfile("agent-1"))

	result, err := engine.AwardXP(context.Background(), skills.XPAward{
		AgentID: "agent-1", AgentName: "Scribe",
		Skill: "research", Amount: 30, Reason: "completed a task",
	})
	require.NoError(t, err)

	assert.Equal(t, 30, result.Awarded)
	assert.Equal(t, skills.LevelBeginner, result.NewLevel)

	profile := engine.GetAgentProfile("agent-1")
	require.NotNil(t, profile)
	assert.Equal(t, "Scribe", profile.AgentName)
	assert.Equal(t, 30, profile.TotalXP)
	assert.Equal(t, 1, profile.TotalTasksCompleted)
}

func TestLevelIsPureFunctionOfXP(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	cases := []struct {
		total int
		level skills.Level
	}{
		{0, skills.LevelBeginner},
		{99, skills.LevelBeginner},
		{100, skills.LevelIntermediate},
		{349, skills.LevelIntermediate},
		{350, skills.LevelAdvanced},
		{849, skills.LevelAdvanced},
		{850, skills.LevelExpert},
		{1849, skills.LevelExpert},
		{1850, skills.LevelMaster},
		{5000, skills.LevelMaster},
	}

	awarded := 0
	for _, tc := range cases {
		if tc.total > awarded {
			_, err := engine.AwardXP(ctx, skills.XPAward{
				AgentID: "agent-1", Skill: "research", Amount: tc.total - awarded,
			})
			require.NoError(t, err)
			awarded = tc.total
		}
		prog := engine.GetSkillProgress("agent-1", "research")
		require.NotNil(t, prog)
		assert.Equal(t, tc.level, prog.Level, "at %d XP", tc.total)
	}
}

func TestAwardXPRecomputesLevelFields(t *testing.T) {
	engine := newTestEngine(t, nil)

	result, err := engine.AwardXP(context.Background(), skills.XPAward{
		AgentID: "agent-1", Skill: "research", Amount: 120,
	})
	require.NoError(t, err)

	assert.True(t, result.LeveledUp)
	assert.Equal(t, skills.LevelBeginner, result.OldLevel)
	assert.Equal(t, skills.LevelIntermediate, result.NewLevel)
	assert.Equal(t, 20, result.Progress.CurrentXP)
	assert.Equal(t, 230, result.Progress.XPToNextLevel)
}

func TestAwardXPDependencyGate(t *testing.T) {
	engine := newTestEngine(t, &skills.Config{
		Dependencies: []skills.DependencyEdge{
			{Skill: "typescript", RequiredSkill: "javascript", RequiredLevel: skills.LevelIntermediate},
		},
	})
	ctx := context.Background()

	// Gated: no javascript at all.
	result, err := engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "typescript", Amount: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Awarded)
	assert.NotEmpty(t, result.Reason)
	assert.Nil(t, engine.GetSkillProgress("agent-1", "typescript"))
	assert.Nil(t, engine.GetAgentProfile("agent-1"))

	// Still gated: javascript exists but below intermediate.
	_, err = engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "javascript", Amount: 50,
	})
	require.NoError(t, err)
	result, err = engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "typescript", Amount: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Awarded)

	// Open: javascript reaches intermediate (100+ XP).
	_, err = engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "javascript", Amount: 50,
	})
	require.NoError(t, err)
	result, err = engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "typescript", Amount: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Awarded)

	prog := engine.GetSkillProgress("agent-1", "typescript")
	require.NotNil(t, prog)
	assert.Equal(t, 50, prog.TotalXP)
	assert.Equal(t, skills.LevelBeginner, prog.Level)
}

func TestAwardXPEmitsEvents(t *testing.T) {
	engine := newTestEngine(t, nil)

	var events []skills.Event
	engine.OnEvent(func(ev skills.Event) { events = append(events, ev) })

	_, err := engine.AwardXP(context.Background(), skills.XPAward{
		AgentID: "agent-1", Skill: "research", Amount: 150,
	})
	require.NoError(t, err)

	types := make([]skills.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, skills.EventXPAwarded)
	assert.Contains(t, types, skills.EventLevelUp)
	assert.Contains(t, types, skills.EventAchievementUnlocked)
}

func TestGetTopSkills(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	for skill, amount := range map[string]int{"research": 200, "writing": 500, "review": 50} {
		_, err := engine.AwardXP(ctx, skills.XPAward{AgentID: "agent-1", Skill: skill, Amount: amount})
		require.NoError(t, err)
	}

	top := engine.GetTopSkills("agent-1", 2)
	require.Len(t, top, 2)
	assert.Equal(t, "writing", top[0].SkillName)
	assert.Equal(t, "research", top[1].SkillName)

	assert.Nil(t, engine.GetTopSkills("nobody", 3))
}

func TestTriggerDecay(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "research", Amount: 400,
	})
	require.NoError(t, err)

	// Backdate usage: 17 idle days is 10 past the 7-day threshold, so
	// 10 days * 5 XP = 50 XP decays away.
	prog := engine.GetSkillProgress("agent-1", "research")
	prog.LastUsed = time.Now().Add(-17 * 24 * time.Hour)

	decayed, err := engine.TriggerDecay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)

	prog = engine.GetSkillProgress("agent-1", "research")
	assert.Equal(t, 350, prog.TotalXP)
	assert.Equal(t, skills.LevelAdvanced, prog.Level)
}

func TestDecayNeverDropsBelowFloor(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "research", Amount: 120,
	})
	require.NoError(t, err)

	// Idle long enough that raw decay would wipe all XP; the floor at
	// intermediate (100 XP) holds.
	prog := engine.GetSkillProgress("agent-1", "research")
	prog.LastUsed = time.Now().Add(-300 * 24 * time.Hour)

	decayed, err := engine.TriggerDecay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)

	prog = engine.GetSkillProgress("agent-1", "research")
	assert.Equal(t, 100, prog.TotalXP)
	assert.Equal(t, skills.LevelIntermediate, prog.Level)

	// Already at the floor: a second sweep changes nothing.
	decayed, err = engine.TriggerDecay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, decayed)
}

func TestDecaySkipsRecentlyUsedSkills(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "research", Amount: 400,
	})
	require.NoError(t, err)

	decayed, err := engine.TriggerDecay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, decayed)
	assert.Equal(t, 400, engine.GetSkillProgress("agent-1", "research").TotalXP)
}

func TestDecayEmitsLevelDownEvent(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", Skill: "research", Amount: 360,
	})
	require.NoError(t, err)

	var events []skills.Event
	engine.OnEvent(func(ev skills.Event) { events = append(events, ev) })

	prog := engine.GetSkillProgress("agent-1", "research")
	prog.LastUsed = time.Now().Add(-10 * 24 * time.Hour)

	_, err = engine.TriggerDecay(ctx)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, skills.EventDecayLevelDown, events[0].Type)
	assert.Equal(t, skills.LevelAdvanced, events[0].OldLevel)
	assert.Equal(t, skills.LevelIntermediate, events[0].NewLevel)
}

func TestProfilesSurviveReload(t *testing.T) {
	snap, err := filestore.NewStore(&filestore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer snap.Close()

	ctx := context.Background()
	first, err := skills.NewEngine(ctx, &skills.Config{Store: snap})
	require.NoError(t, err)

	_, err = first.AwardXP(ctx, skills.XPAward{
		AgentID: "agent-1", AgentName: "Scribe", Skill: "research", Amount: 150,
	})
	require.NoError(t, err)

	second, err := skills.NewEngine(ctx, &skills.Config{Store: snap})
	require.NoError(t, err)

	profile := second.GetAgentProfile("agent-1")
	require.NotNil(t, profile)
	assert.Equal(t, 150, profile.TotalXP)
	prog := second.GetSkillProgress("agent-1", "research")
	require.NotNil(t, prog)
	assert.Equal(t, skills.LevelIntermediate, prog.Level)
}

func TestAwardXPRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.AwardXP(ctx, skills.XPAward{Skill: "research", Amount: 10})
	assert.Error(t, err)

	_, err = engine.AwardXP(ctx, skills.XPAward{AgentID: "agent-1", Amount: 10})
	assert.Error(t, err)

	_, err = engine.AwardXP(ctx, skills.XPAward{AgentID: "agent-1", Skill: "research", Amount: -5})
	assert.Error(t, err)
}
