package router

import (
	"encoding/json"
	"time"
)

// Upstream event names.
const (
	EventHPUpdate    = "worldBossHpUpdate"
	EventBattleStep  = "worldBossBattleStep"
	EventLeaderboard = "worldBossLeaderboardUpdate"
	EventStartBattle = "startWorldBossBattle"
)

// Kind classifies a routed inbound frame.
type Kind int

const (
	KindDropped     Kind = iota // Malformed or non-event frame
	KindPing                    // "2" liveness probe
	KindHPUpdate                // Shared encounter counters
	KindBattleStep              // Per-account battle step
	KindLeaderboard             // Shared leaderboard snapshot
	KindUnknown                 // Well-formed event with an unhandled name
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindHPUpdate:
		return "hp_update"
	case KindBattleStep:
		return "battle_step"
	case KindLeaderboard:
		return "leaderboard"
	case KindUnknown:
		return "unknown"
	default:
		return "dropped"
	}
}

// Message is a routed inbound frame.
type Message struct {
	Kind       Kind
	Event      string          // Event name (empty for ping/dropped)
	Payload    json.RawMessage // Raw payload (nil if absent)
	ReceivedAt time.Time

	HP *HPUpdate // Set for KindHPUpdate
}

// HPUpdate is the payload of a worldBossHpUpdate event.
type HPUpdate struct {
	BossID    string  `json:"bossId"`
	CurrentHP float64 `json:"currentHp"`
	MaxHP     float64 `json:"maxHp"`
}

// JoinPayload is the payload of an outbound startWorldBossBattle event.
type JoinPayload struct {
	WorldBossID string `json:"worldBossId"`
	ChallengeID string `json:"challengeId"`
}
