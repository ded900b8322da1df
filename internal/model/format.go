package model

import (
	"encoding/json"
	"fmt"
	"time"
)

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// BattleStep holds the fields of a worldBossBattleStep payload shown to viewers.
type BattleStep struct {
	ConditionalEffects []struct {
		Name string `json:"name"`
	} `json:"conditionalEffects"`
	Damage         float64 `json:"damage"`
	CurrentEnemyHP float64 `json:"currentEnemyHP"`
	EnemyHPMax     float64 `json:"enemyHPMax"`
	IsCrit         bool    `json:"isCrit"`
	IsMiss         bool    `json:"isMiss"`
}

// StepRow formats a battle step event as
// [time, username, effects, damage, cHP, mHP, isCrit, isMiss].
// Events whose payload is not a battle step yield ok == false.
func StepRow(e Event, username string) (row []any, ok bool) {
	var step BattleStep
	if len(e.Payload) == 0 || json.Unmarshal(e.Payload, &step) != nil {
		return nil, false
	}

	effects := make([]string, 0, len(step.ConditionalEffects))
	for _, eff := range step.ConditionalEffects {
		effects = append(effects, eff.Name)
	}

	clock := e.CapturedAt.Format(time.TimeOnly)
	if e.CapturedAt.IsZero() {
		// Steps stored by older deployments carry their own clock string.
		var legacy struct {
			Time string `json:"time"`
		}
		if json.Unmarshal(e.Payload, &legacy) == nil && legacy.Time != "" {
			clock = legacy.Time
		}
	}

	return []any{
		clock,
		username,
		effects,
		step.Damage,
		step.CurrentEnemyHP,
		step.EnemyHPMax,
		step.IsCrit,
		step.IsMiss,
	}, true
}
