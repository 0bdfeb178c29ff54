package skills

import "time"

// EventType names a domain event emitted by the engine.
type EventType string

const (
	// EventXPAwarded fires on every successful XP award.
	EventXPAwarded EventType = "xp_awarded"

	// EventLevelUp fires when an award crosses a level threshold.
	EventLevelUp EventType = "level_up"

	// EventDecayLevelDown fires when idle decay lowers a level.
	EventDecayLevelDown EventType = "decay_level_down"

	// EventAchievementUnlocked fires once per achievement per profile.
	EventAchievementUnlocked EventType = "achievement_unlocked"
)

// Event carries the before/after state of a skill change for external
// consumers (notifications, UI).
type Event struct {
	Type      EventType `json:"type"`
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Skill     string    `json:"skill,omitempty"`

	// Amount is the XP delta: positive for awards, negative for decay.
	Amount int `json:"amount,omitempty"`

	// Reason is the award reason, when one was given.
	Reason string `json:"reason,omitempty"`

	// OldLevel and NewLevel bracket a level change.
	OldLevel Level `json:"old_level,omitempty"`
	NewLevel Level `json:"new_level,omitempty"`

	// Achievement is set on achievement_unlocked events.
	Achievement *Achievement `json:"achievement,omitempty"`

	At time.Time `json:"at"`
}

// EventHandler receives engine events. Handlers run synchronously on the
// mutating call's goroutine and must not call back into the engine.
type EventHandler func(Event)

// OnEvent registers a handler for all subsequent events.
func (e *Engine) OnEvent(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// emitLocked delivers an event to every registered handler.
func (e *Engine) emitLocked(ev Event) {
	ev.At = time.Now()
	for _, h := range e.handlers {
		h(ev)
	}
}
